package digitaloceanprovider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/digitalocean/godo"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"
	"sigs.k8s.io/external-dns/plan"
)

// ErrUpdateSlicesMismatch is returned when update slices have different lengths
var ErrUpdateSlicesMismatch = errors.New("update slices have different lengths")

// bootstrapIP is the placeholder address DigitalOcean requires on zone
// creation. The record it produces is deleted right after.
const bootstrapIP = "192.0.2.1"

// ApplyChanges applies the given changes to the DigitalOcean DNS records.
func (p *DigitalOceanProvider) ApplyChanges(ctx context.Context, changes *plan.Changes) error {
	p.logger.Info("Applying DNS changes",
		zap.Int("create", len(changes.Create)),
		zap.Int("updateOld", len(changes.UpdateOld)),
		zap.Int("updateNew", len(changes.UpdateNew)),
		zap.Int("delete", len(changes.Delete)))

	if len(changes.UpdateOld) != len(changes.UpdateNew) {
		p.logger.Error("Update slices have different lengths",
			zap.Int("updateOld", len(changes.UpdateOld)),
			zap.Int("updateNew", len(changes.UpdateNew)))
		return ErrUpdateSlicesMismatch
	}

	if len(changes.Create) == 0 && len(changes.UpdateNew) == 0 && len(changes.Delete) == 0 {
		p.logger.Info("No changes to apply")
		return nil
	}

	// Build tasks for all changes, each bound to its zone
	var tasks []changeTask

	for _, ep := range changes.Create {
		zone, err := p.resolveZone(ctx, ep.DNSName)
		if err != nil {
			return err
		}
		tasks = append(tasks, changeTask{action: CREATE, zone: zone, change: ep})
	}

	for i, ep := range changes.UpdateNew {
		zone, err := p.resolveZone(ctx, ep.DNSName)
		if err != nil {
			return err
		}
		tasks = append(tasks, changeTask{
			action:    UPDATE,
			zone:      zone,
			change:    ep,
			oldChange: changes.UpdateOld[i],
		})
	}

	for _, ep := range changes.Delete {
		zone, err := p.resolveZone(ctx, ep.DNSName)
		if err != nil {
			return err
		}
		tasks = append(tasks, changeTask{action: DELETE, zone: zone, change: ep})
	}

	zones := affectedZones(tasks)

	// Zones targeted only through the domain filter may not exist yet
	if !p.dryRun {
		for _, zone := range zones {
			if err := p.ensureZone(ctx, zone); err != nil {
				return err
			}
		}
	}

	err := p.processTasksWithWorkers(ctx, tasks)

	// Clear out the cache of every touched zone, even on failure
	for _, zone := range zones {
		p.invalidateZoneCache(zone)
	}

	return err
}

// resolveZone finds the zone a DNS name belongs to. Names matching no account
// domain fall back to the configured domain filter, which lets ApplyChanges
// create zones that don't exist yet.
func (p *DigitalOceanProvider) resolveZone(ctx context.Context, dnsName string) (string, error) {
	zone, err := p.zoneForName(ctx, dnsName)
	if err == nil {
		return zone, nil
	}
	if !errors.Is(err, ErrZoneNotFound) {
		return "", err
	}

	name := stripTrailingDot(dnsName)
	for _, filter := range p.domainFilter.Filters {
		candidate := stripTrailingDot(filter)
		if candidate == "" {
			continue
		}
		if name == candidate || strings.HasSuffix(name, "."+candidate) {
			if len(candidate) > len(zone) {
				zone = candidate
			}
		}
	}
	if zone == "" {
		return "", ErrZoneNotFound
	}

	p.logger.Debug("Resolved zone from domain filter",
		zap.String("dnsName", dnsName),
		zap.String("zone", zone))
	return zone, nil
}

// ensureZone creates the zone if the account doesn't have it yet. Zone
// creation requires a placeholder IP whose bootstrap record is removed again.
func (p *DigitalOceanProvider) ensureZone(ctx context.Context, zone string) error {
	err := p.doWithRetry(ctx, func() (*godo.Response, error) {
		_, resp, err := p.apiClient.Get(ctx, zone)
		return resp, err
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrDomainNotFound) {
		return err
	}

	p.logger.Info("Zone does not exist, creating it", zap.String("zone", zone))

	err = p.doWithRetry(ctx, func() (*godo.Response, error) {
		_, resp, err := p.apiClient.Create(ctx, &godo.DomainCreateRequest{
			Name:      zone,
			IPAddress: bootstrapIP,
		})
		return resp, err
	})
	if err != nil {
		p.logger.Error("Failed to create zone", zap.String("zone", zone), zap.Error(err))
		return fmt.Errorf("failed to create zone %s: %w", zone, err)
	}

	// After the zone is created, immediately delete the bootstrap record
	records, err := p.fetchZoneRecords(ctx, zone)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.Type == endpoint.RecordTypeA && (record.Name == "@" || record.Name == "") {
			if err := p.deleteRecordByID(ctx, zone, record.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

func affectedZones(tasks []changeTask) []string {
	seen := make(map[string]struct{})
	var zones []string
	for _, task := range tasks {
		if _, ok := seen[task.zone]; ok {
			continue
		}
		seen[task.zone] = struct{}{}
		zones = append(zones, task.zone)
	}
	sort.Strings(zones)
	return zones
}

// processTasksWithWorkers processes DNS record tasks using multiple worker goroutines.
func (p *DigitalOceanProvider) processTasksWithWorkers(ctx context.Context, tasks []changeTask) error {
	if len(tasks) == 0 {
		return nil
	}

	workerCount := 4
	if len(tasks) < workerCount {
		workerCount = len(tasks) // Don't create more workers than tasks
	}

	taskChan := make(chan changeTask, len(tasks))
	resultChan := make(chan error, len(tasks))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID, taskChan, resultChan)
		}(i)
	}

	go func() {
		for _, task := range tasks {
			select {
			case taskChan <- task:
			case <-ctx.Done():
				return
			}
		}
		close(taskChan)
	}()

	// Collect results and capture the first error
	var firstErr error
	for i := 0; i < len(tasks); i++ {
		select {
		case err := <-resultChan:
			if err != nil && firstErr == nil {
				firstErr = err
				cancel() // Stop the other workers
			}
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}

	wg.Wait()
	close(resultChan)

	return firstErr
}

// worker is a goroutine that processes tasks from the task channel
func (p *DigitalOceanProvider) worker(ctx context.Context, id int, taskChan <-chan changeTask, resultChan chan<- error) {
	for {
		select {
		case task, ok := <-taskChan:
			if !ok {
				return
			}

			// Skip actual API calls in dry-run mode
			if p.dryRun {
				p.logger.Info("Would process DNS record (dry-run)",
					zap.Int("worker", id),
					zap.String("action", task.action),
					zap.String("zone", task.zone),
					zap.String("name", task.change.DNSName),
					zap.String("type", task.change.RecordType))
				resultChan <- nil
				continue
			}

			var err error
			switch task.action {
			case CREATE:
				err = p.processCreate(ctx, task.zone, task.change)
			case UPDATE:
				err = p.processUpdate(ctx, task.zone, task.oldChange, task.change)
			case DELETE:
				err = p.processDelete(ctx, task.zone, task.change)
			default:
				err = fmt.Errorf("unknown action: %s", task.action)
			}

			resultChan <- err

		case <-ctx.Done():
			return
		}
	}
}

// processCreate creates one DigitalOcean record per endpoint target.
func (p *DigitalOceanProvider) processCreate(ctx context.Context, zone string, ep *endpoint.Endpoint) error {
	requests, err := p.recordRequestsForEndpoint(zone, ep)
	if err != nil {
		return err
	}

	for _, req := range requests {
		if err := p.createRecord(ctx, zone, req); err != nil {
			return err
		}
	}
	return nil
}

// processUpdate replaces all records of the old endpoint's record set with
// the new endpoint's targets. DigitalOcean has no multi-value record update,
// so an update is a delete followed by a create.
func (p *DigitalOceanProvider) processUpdate(ctx context.Context, zone string, oldEp, newEp *endpoint.Endpoint) error {
	if err := p.processDelete(ctx, zone, oldEp); err != nil {
		return err
	}
	return p.processCreate(ctx, zone, newEp)
}

// processDelete removes every record matching the endpoint's name and type.
func (p *DigitalOceanProvider) processDelete(ctx context.Context, zone string, ep *endpoint.Endpoint) error {
	records, err := p.zoneRecordsFor(ctx, zone)
	if err != nil {
		return err
	}

	name := relativeName(ep.DNSName, zone)
	deleted := 0
	for _, record := range records {
		if record.Type != ep.RecordType {
			continue
		}
		recordName := record.Name
		if recordName == "" {
			recordName = "@"
		}
		if recordName != name {
			continue
		}
		if err := p.deleteRecordByID(ctx, zone, record.ID); err != nil {
			return err
		}
		deleted++
	}

	if deleted == 0 {
		p.logger.Debug("No matching records to delete",
			zap.String("zone", zone),
			zap.String("name", name),
			zap.String("type", ep.RecordType))
	}
	return nil
}

// createRecord performs the API call for a single record.
func (p *DigitalOceanProvider) createRecord(ctx context.Context, zone string, req *godo.DomainRecordEditRequest) error {
	err := p.doWithRetry(ctx, func() (*godo.Response, error) {
		_, resp, err := p.apiClient.CreateRecord(ctx, zone, req)
		return resp, err
	})
	if err != nil {
		p.logger.Error("Failed to create DNS record",
			zap.String("zone", zone),
			zap.String("name", req.Name),
			zap.String("type", req.Type),
			zap.String("data", req.Data),
			zap.Error(err))
		return err
	}

	p.logger.Info("Created DNS record",
		zap.String("zone", zone),
		zap.String("name", req.Name),
		zap.String("type", req.Type),
		zap.String("data", req.Data),
		zap.Int("ttl", req.TTL))
	return nil
}

// deleteRecordByID performs the API call for a single record deletion.
func (p *DigitalOceanProvider) deleteRecordByID(ctx context.Context, zone string, id int) error {
	err := p.doWithRetry(ctx, func() (*godo.Response, error) {
		return p.apiClient.DeleteRecord(ctx, zone, id)
	})
	if err != nil {
		p.logger.Error("Failed to delete DNS record",
			zap.String("zone", zone),
			zap.Int("record_id", id),
			zap.Error(err))
		return err
	}

	p.logger.Info("Deleted DNS record",
		zap.String("zone", zone),
		zap.Int("record_id", id))
	return nil
}
