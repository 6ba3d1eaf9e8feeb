package digitaloceanprovider

import (
	"context"
	"net/http"

	"github.com/digitalocean/godo"
	"github.com/stretchr/testify/mock"
)

// MockDomainsAPI is a mock implementation of the DomainsAPI interface
type MockDomainsAPI struct {
	mock.Mock
}

func (m *MockDomainsAPI) List(ctx context.Context, opt *godo.ListOptions) ([]godo.Domain, *godo.Response, error) {
	args := m.Called(ctx, opt)
	return domainsArg(args, 0), responseArg(args, 1), args.Error(2)
}

func (m *MockDomainsAPI) Get(ctx context.Context, name string) (*godo.Domain, *godo.Response, error) {
	args := m.Called(ctx, name)
	domain, _ := args.Get(0).(*godo.Domain)
	return domain, responseArg(args, 1), args.Error(2)
}

func (m *MockDomainsAPI) Create(ctx context.Context, req *godo.DomainCreateRequest) (*godo.Domain, *godo.Response, error) {
	args := m.Called(ctx, req)
	domain, _ := args.Get(0).(*godo.Domain)
	return domain, responseArg(args, 1), args.Error(2)
}

func (m *MockDomainsAPI) Records(ctx context.Context, domain string, opt *godo.ListOptions) ([]godo.DomainRecord, *godo.Response, error) {
	args := m.Called(ctx, domain, opt)
	records, _ := args.Get(0).([]godo.DomainRecord)
	return records, responseArg(args, 1), args.Error(2)
}

func (m *MockDomainsAPI) CreateRecord(ctx context.Context, domain string, req *godo.DomainRecordEditRequest) (*godo.DomainRecord, *godo.Response, error) {
	args := m.Called(ctx, domain, req)
	record, _ := args.Get(0).(*godo.DomainRecord)
	return record, responseArg(args, 1), args.Error(2)
}

func (m *MockDomainsAPI) DeleteRecord(ctx context.Context, domain string, id int) (*godo.Response, error) {
	args := m.Called(ctx, domain, id)
	return responseArg(args, 0), args.Error(1)
}

func domainsArg(args mock.Arguments, i int) []godo.Domain {
	domains, _ := args.Get(i).([]godo.Domain)
	return domains
}

func responseArg(args mock.Arguments, i int) *godo.Response {
	resp, _ := args.Get(i).(*godo.Response)
	return resp
}

// testResponse builds a godo response with the given status on the last page.
func testResponse(status int) *godo.Response {
	return &godo.Response{
		Response: &http.Response{
			StatusCode: status,
			Header:     http.Header{},
		},
	}
}

// testPagedResponse builds a godo response that reports a further page.
func testPagedResponse(status int, next string) *godo.Response {
	resp := testResponse(status)
	resp.Links = &godo.Links{
		Pages: &godo.Pages{
			Next: next,
			Last: next,
		},
	}
	return resp
}
