package digitaloceanprovider

import (
	"context"
	"net/http"
	"testing"

	"github.com/digitalocean/godo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/external-dns/endpoint"
	"sigs.k8s.io/external-dns/plan"
)

// TestApplyChangesBasic tests basic functionality of ApplyChanges
func TestApplyChangesBasic(t *testing.T) {
	mockClient := new(MockDomainsAPI)
	mockClient.On("List", mock.Anything, mock.Anything).
		Return([]godo.Domain{{Name: "unit.tests"}}, testResponse(http.StatusOK), nil)

	p := newTestProvider(mockClient)
	p.dryRun = true

	changes := &plan.Changes{
		Create: []*endpoint.Endpoint{
			{
				DNSName:    "test.unit.tests",
				Targets:    endpoint.Targets{"192.168.1.1"},
				RecordType: "A",
			},
		},
		UpdateOld: []*endpoint.Endpoint{},
		UpdateNew: []*endpoint.Endpoint{},
		Delete:    []*endpoint.Endpoint{},
	}

	err := p.ApplyChanges(context.Background(), changes)
	assert.NoError(t, err)
	// dry-run never talks to the records API
	mockClient.AssertNotCalled(t, "CreateRecord", mock.Anything, mock.Anything, mock.Anything)
}

// TestApplyChangesError tests error handling in ApplyChanges
func TestApplyChangesError(t *testing.T) {
	mockClient := new(MockDomainsAPI)
	mockClient.On("List", mock.Anything, mock.Anything).
		Return(nil, testResponse(http.StatusBadRequest), assert.AnError)

	p := newTestProvider(mockClient)
	p.dryRun = true

	changes := &plan.Changes{
		Create: []*endpoint.Endpoint{
			{
				DNSName:    "test.unit.tests",
				Targets:    endpoint.Targets{"192.168.1.1"},
				RecordType: "A",
			},
		},
	}

	err := p.ApplyChanges(context.Background(), changes)
	assert.Error(t, err)
	mockClient.AssertCalled(t, "List", mock.Anything, mock.Anything)
}

// TestApplyChangesEmptyChanges tests that empty changes don't cause errors
func TestApplyChangesEmptyChanges(t *testing.T) {
	mockClient := new(MockDomainsAPI)
	p := newTestProvider(mockClient)

	changes := &plan.Changes{
		Create:    []*endpoint.Endpoint{},
		UpdateOld: []*endpoint.Endpoint{},
		UpdateNew: []*endpoint.Endpoint{},
		Delete:    []*endpoint.Endpoint{},
	}

	err := p.ApplyChanges(context.Background(), changes)
	assert.NoError(t, err)
	mockClient.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

// TestApplyChangesUnequalUpdateSlices tests that unequal update slices cause an error
func TestApplyChangesUnequalUpdateSlices(t *testing.T) {
	p := newTestProvider(new(MockDomainsAPI))

	changes := &plan.Changes{
		UpdateOld: []*endpoint.Endpoint{
			{
				DNSName:    "update1.unit.tests",
				Targets:    endpoint.Targets{"192.168.1.1"},
				RecordType: "A",
			},
			{
				DNSName:    "update2.unit.tests",
				Targets:    endpoint.Targets{"192.168.1.2"},
				RecordType: "A",
			},
		},
		UpdateNew: []*endpoint.Endpoint{
			{
				DNSName:    "update1.unit.tests",
				Targets:    endpoint.Targets{"192.168.1.3"},
				RecordType: "A",
			},
		},
	}

	err := p.ApplyChanges(context.Background(), changes)
	assert.ErrorIs(t, err, ErrUpdateSlicesMismatch)
}

func TestApplyChangesCreate(t *testing.T) {
	mockClient := new(MockDomainsAPI)
	mockClient.On("List", mock.Anything, mock.Anything).
		Return([]godo.Domain{{Name: "unit.tests"}}, testResponse(http.StatusOK), nil)
	mockClient.On("Get", mock.Anything, "unit.tests").
		Return(&godo.Domain{Name: "unit.tests"}, testResponse(http.StatusOK), nil)
	mockClient.On("CreateRecord", mock.Anything, "unit.tests", mock.Anything).
		Return(&godo.DomainRecord{ID: 1}, testResponse(http.StatusCreated), nil)

	p := newTestProvider(mockClient)

	changes := &plan.Changes{
		Create: []*endpoint.Endpoint{
			endpoint.NewEndpointWithTTL("unit.tests", "A", 300, "1.2.3.4", "1.2.3.5"),
			endpoint.NewEndpointWithTTL("unit.tests", "MX", 600, "10 smtp.unit.tests"),
		},
	}

	err := p.ApplyChanges(context.Background(), changes)
	require.NoError(t, err)

	mockClient.AssertCalled(t, "CreateRecord", mock.Anything, "unit.tests",
		&godo.DomainRecordEditRequest{Type: "A", Name: "@", Data: "1.2.3.4", TTL: 300})
	mockClient.AssertCalled(t, "CreateRecord", mock.Anything, "unit.tests",
		&godo.DomainRecordEditRequest{Type: "A", Name: "@", Data: "1.2.3.5", TTL: 300})
	mockClient.AssertCalled(t, "CreateRecord", mock.Anything, "unit.tests",
		&godo.DomainRecordEditRequest{Type: "MX", Name: "@", Data: "smtp.unit.tests.", Priority: 10, TTL: 600})
	mockClient.AssertNumberOfCalls(t, "CreateRecord", 3)
}

func TestApplyChangesDelete(t *testing.T) {
	mockClient := new(MockDomainsAPI)
	mockClient.On("List", mock.Anything, mock.Anything).
		Return([]godo.Domain{{Name: "unit.tests"}}, testResponse(http.StatusOK), nil)
	mockClient.On("Get", mock.Anything, "unit.tests").
		Return(&godo.Domain{Name: "unit.tests"}, testResponse(http.StatusOK), nil)
	mockClient.On("Records", mock.Anything, "unit.tests", mock.Anything).
		Return([]godo.DomainRecord{
			{ID: 11189897, Type: "A", Name: "www", Data: "1.2.3.4", TTL: 300},
			{ID: 11189898, Type: "A", Name: "www", Data: "2.2.3.4", TTL: 300},
			{ID: 11189899, Type: "A", Name: "ttl", Data: "3.2.3.4", TTL: 600},
		}, testResponse(http.StatusOK), nil).Once()
	mockClient.On("DeleteRecord", mock.Anything, "unit.tests", mock.Anything).
		Return(testResponse(http.StatusNoContent), nil)

	p := newTestProvider(mockClient)

	changes := &plan.Changes{
		Delete: []*endpoint.Endpoint{
			endpoint.NewEndpoint("www.unit.tests", "A", "1.2.3.4", "2.2.3.4"),
		},
	}

	err := p.ApplyChanges(context.Background(), changes)
	require.NoError(t, err)

	// every record of the (name, type) set goes away, the unrelated one stays
	mockClient.AssertCalled(t, "DeleteRecord", mock.Anything, "unit.tests", 11189897)
	mockClient.AssertCalled(t, "DeleteRecord", mock.Anything, "unit.tests", 11189898)
	mockClient.AssertNumberOfCalls(t, "DeleteRecord", 2)
}

func TestApplyChangesUpdate(t *testing.T) {
	mockClient := new(MockDomainsAPI)
	mockClient.On("List", mock.Anything, mock.Anything).
		Return([]godo.Domain{{Name: "unit.tests"}}, testResponse(http.StatusOK), nil)
	mockClient.On("Get", mock.Anything, "unit.tests").
		Return(&godo.Domain{Name: "unit.tests"}, testResponse(http.StatusOK), nil)
	mockClient.On("Records", mock.Anything, "unit.tests", mock.Anything).
		Return([]godo.DomainRecord{
			{ID: 11189899, Type: "A", Name: "ttl", Data: "3.2.3.4", TTL: 600},
		}, testResponse(http.StatusOK), nil).Once()
	mockClient.On("DeleteRecord", mock.Anything, "unit.tests", 11189899).
		Return(testResponse(http.StatusNoContent), nil)
	mockClient.On("CreateRecord", mock.Anything, "unit.tests", mock.Anything).
		Return(&godo.DomainRecord{ID: 2}, testResponse(http.StatusCreated), nil)

	p := newTestProvider(mockClient)

	changes := &plan.Changes{
		UpdateOld: []*endpoint.Endpoint{
			endpoint.NewEndpointWithTTL("ttl.unit.tests", "A", 600, "3.2.3.4"),
		},
		UpdateNew: []*endpoint.Endpoint{
			endpoint.NewEndpointWithTTL("ttl.unit.tests", "A", 300, "3.2.3.4"),
		},
	}

	err := p.ApplyChanges(context.Background(), changes)
	require.NoError(t, err)

	// an update is a delete of the old record set followed by a create
	mockClient.AssertCalled(t, "DeleteRecord", mock.Anything, "unit.tests", 11189899)
	mockClient.AssertCalled(t, "CreateRecord", mock.Anything, "unit.tests",
		&godo.DomainRecordEditRequest{Type: "A", Name: "ttl", Data: "3.2.3.4", TTL: 300})
}

func TestApplyChangesCreatesMissingZone(t *testing.T) {
	mockClient := new(MockDomainsAPI)
	mockClient.On("List", mock.Anything, mock.Anything).
		Return([]godo.Domain{}, testResponse(http.StatusOK), nil)
	mockClient.On("Get", mock.Anything, "unit.tests").
		Return(nil, testResponse(http.StatusNotFound), assert.AnError)
	mockClient.On("Create", mock.Anything, &godo.DomainCreateRequest{Name: "unit.tests", IPAddress: bootstrapIP}).
		Return(&godo.Domain{Name: "unit.tests"}, testResponse(http.StatusCreated), nil)
	// the freshly created zone carries NS records and the bootstrap A record
	mockClient.On("Records", mock.Anything, "unit.tests", mock.Anything).
		Return([]godo.DomainRecord{
			{ID: 11189874, Type: "NS", Name: "@", Data: "ns1.digitalocean.com", TTL: 3600},
			{ID: 11189877, Type: "A", Name: "@", Data: bootstrapIP, TTL: 3600},
		}, testResponse(http.StatusOK), nil)
	mockClient.On("DeleteRecord", mock.Anything, "unit.tests", 11189877).
		Return(testResponse(http.StatusNoContent), nil)
	mockClient.On("CreateRecord", mock.Anything, "unit.tests", mock.Anything).
		Return(&godo.DomainRecord{ID: 1}, testResponse(http.StatusCreated), nil)

	p := newTestProvider(mockClient, "unit.tests")

	changes := &plan.Changes{
		Create: []*endpoint.Endpoint{
			endpoint.NewEndpointWithTTL("www.unit.tests", "A", 300, "1.2.3.4"),
		},
	}

	err := p.ApplyChanges(context.Background(), changes)
	require.NoError(t, err)

	mockClient.AssertCalled(t, "Create", mock.Anything,
		&godo.DomainCreateRequest{Name: "unit.tests", IPAddress: bootstrapIP})
	mockClient.AssertCalled(t, "DeleteRecord", mock.Anything, "unit.tests", 11189877)
	mockClient.AssertCalled(t, "CreateRecord", mock.Anything, "unit.tests",
		&godo.DomainRecordEditRequest{Type: "A", Name: "www", Data: "1.2.3.4", TTL: 300})
}

func TestApplyChangesUnknownZone(t *testing.T) {
	mockClient := new(MockDomainsAPI)
	mockClient.On("List", mock.Anything, mock.Anything).
		Return([]godo.Domain{{Name: "unit.tests"}}, testResponse(http.StatusOK), nil)

	p := newTestProvider(mockClient)

	changes := &plan.Changes{
		Create: []*endpoint.Endpoint{
			endpoint.NewEndpoint("www.elsewhere.example", "A", "1.2.3.4"),
		},
	}

	err := p.ApplyChanges(context.Background(), changes)
	assert.ErrorIs(t, err, ErrZoneNotFound)
}

func TestApplyChangesRetriesOnRateLimit(t *testing.T) {
	mockClient := new(MockDomainsAPI)
	mockClient.On("List", mock.Anything, mock.Anything).
		Return([]godo.Domain{{Name: "unit.tests"}}, testResponse(http.StatusOK), nil)
	mockClient.On("Get", mock.Anything, "unit.tests").
		Return(&godo.Domain{Name: "unit.tests"}, testResponse(http.StatusOK), nil)
	mockClient.On("CreateRecord", mock.Anything, "unit.tests", mock.Anything).
		Return(nil, testResponse(http.StatusTooManyRequests), assert.AnError).Once()
	mockClient.On("CreateRecord", mock.Anything, "unit.tests", mock.Anything).
		Return(&godo.DomainRecord{ID: 1}, testResponse(http.StatusCreated), nil).Once()

	p := newTestProvider(mockClient)

	changes := &plan.Changes{
		Create: []*endpoint.Endpoint{
			endpoint.NewEndpointWithTTL("www.unit.tests", "A", 300, "1.2.3.4"),
		},
	}

	err := p.ApplyChanges(context.Background(), changes)
	require.NoError(t, err)
	mockClient.AssertNumberOfCalls(t, "CreateRecord", 2)
}

func TestApplyChangesInvalidatesZoneCache(t *testing.T) {
	mockClient := new(MockDomainsAPI)
	mockClient.On("List", mock.Anything, mock.Anything).
		Return([]godo.Domain{{Name: "unit.tests"}}, testResponse(http.StatusOK), nil)
	mockClient.On("Get", mock.Anything, "unit.tests").
		Return(&godo.Domain{Name: "unit.tests"}, testResponse(http.StatusOK), nil)
	mockClient.On("Records", mock.Anything, "unit.tests", mock.Anything).
		Return([]godo.DomainRecord{
			{ID: 1, Type: "A", Name: "www", Data: "1.2.3.4", TTL: 300},
		}, testResponse(http.StatusOK), nil)
	mockClient.On("CreateRecord", mock.Anything, "unit.tests", mock.Anything).
		Return(&godo.DomainRecord{ID: 2}, testResponse(http.StatusCreated), nil)

	p := newTestProvider(mockClient)

	_, err := p.Records(context.Background())
	require.NoError(t, err)
	mockClient.AssertNumberOfCalls(t, "Records", 1)

	err = p.ApplyChanges(context.Background(), &plan.Changes{
		Create: []*endpoint.Endpoint{
			endpoint.NewEndpointWithTTL("new.unit.tests", "A", 300, "5.6.7.8"),
		},
	})
	require.NoError(t, err)

	// the zone's record cache was dropped, so Records hits the API again
	_, err = p.Records(context.Background())
	require.NoError(t, err)
	mockClient.AssertNumberOfCalls(t, "Records", 2)
}
