//go:build bdd

package steps

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cucumber/godog"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/identitytag"
	"github.com/metabridge/catalogd/internal/idgen"
	"github.com/metabridge/catalogd/internal/ident"
)

// RegisterDispatcherSteps wires every Given/When/Then step the dispatcher
// feature file uses against tc.
func RegisterDispatcherSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^catalog "([^"]*)" is registered as SCHEMA-managed$`, tc.givenCatalogManaged)
	ctx.Step(`^catalog "([^"]*)" is registered as not managed$`, tc.givenCatalogUnmanaged)
	ctx.Step(`^the next generated identity is (\d+)$`, tc.givenNextIdentity)
	ctx.Step(`^schema "([^"]*)" was created with no properties$`, tc.givenSchemaCreated)
	ctx.Step(`^schema "([^"]*)" exists with the same identity tag as "([^"]*)"$`, tc.givenSchemaWithSameIdentityTagAs)
	ctx.Step(`^the backend directly holds schema "([^"]*)" with no store row$`, tc.givenBackendHoldsOrphanSchema)

	ctx.Step(`^I create schema "([^"]*)" with comment "([^"]*)" and no properties$`, tc.whenCreateSchemaNoProperties)
	ctx.Step(`^I create schema "([^"]*)" with comment "([^"]*)" and properties:$`, tc.whenCreateSchemaWithProperties)
	ctx.Step(`^I load schema "([^"]*)"$`, tc.whenLoadSchema)
	ctx.Step(`^I drop schema "([^"]*)" without cascade$`, tc.whenDropSchema)
	ctx.Step(`^the backend renames "([^"]*)" to "([^"]*)" preserving its properties$`, tc.whenBackendRenames)
	ctx.Step(`^I concurrently alter schema "([^"]*)" setting property "([^"]*)" to "([^"]*)" and setting property "([^"]*)" to "([^"]*)"$`, tc.whenConcurrentlyAlter)

	ctx.Step(`^the create succeeds with no entity attached$`, tc.thenCreateSucceedsNoEntity)
	ctx.Step(`^the create succeeds with entity id (\d+)$`, tc.thenCreateSucceedsWithID)
	ctx.Step(`^the load succeeds with no entity attached$`, tc.thenLoadSucceedsNoEntity)
	ctx.Step(`^the load succeeds with entity id (\d+)$`, tc.thenLoadSucceedsWithID)
	ctx.Step(`^the load fails with a multiple-catalogs-manage-schema error$`, tc.thenLoadFailsMultipleCatalogs)
	ctx.Step(`^the entity store was never consulted$`, tc.thenStoreNeverConsulted)
	ctx.Step(`^the backend properties for "([^"]*)" include the identity tag for (\d+)$`, tc.thenBackendPropertiesIncludeTag)
	ctx.Step(`^the visible properties are:$`, tc.thenVisiblePropertiesAre)
	ctx.Step(`^the entity store row for "([^"]*)" has id (\d+) and name "([^"]*)"$`, tc.thenEntityStoreRowHas)
	ctx.Step(`^the drop succeeds with result true$`, tc.thenDropSucceedsTrue)
	ctx.Step(`^both alters succeed$`, tc.thenBothAltersSucceed)
	ctx.Step(`^the final property "([^"]*)" on "([^"]*)" is one of "([^"]*)" or "([^"]*)"$`, tc.thenFinalPropertyIsOneOf)
}

// --- Given ---

func (tc *TestContext) givenCatalogManaged(prefix string) error {
	_, err := tc.registerCatalog(prefix, true)
	return err
}

func (tc *TestContext) givenCatalogUnmanaged(prefix string) error {
	_, err := tc.registerCatalog(prefix, false)
	return err
}

func (tc *TestContext) givenNextIdentity(next int) error {
	tc.ids = idgen.New(uint64(next) - 1)
	tc.rebuildDispatcher()
	return nil
}

func (tc *TestContext) givenSchemaCreated(fullName string) error {
	name, err := ident.Parse(fullName)
	if err != nil {
		return err
	}
	cs, err := tc.dispatcher.CreateSchema(context.Background(), name, "", nil)
	if err != nil {
		return fmt.Errorf("seed create %s: %w", fullName, err)
	}
	tc.rememberEntity(fullName, cs)
	return nil
}

func (tc *TestContext) givenSchemaWithSameIdentityTagAs(fullName, refName string) error {
	tag, ok := tc.entityIDs[refName]
	if !ok {
		return fmt.Errorf("no remembered identity tag for %s", refName)
	}
	name, err := ident.Parse(fullName)
	if err != nil {
		return err
	}
	ops, ok := tc.backendFor(name)
	if !ok {
		return fmt.Errorf("no backend registered for catalog of %s", fullName)
	}
	ops.schemas[name.Leaf()] = catalog.Schema{
		Name:       name,
		Properties: identitytag.InjectInto(nil, tag),
	}
	return nil
}

func (tc *TestContext) givenBackendHoldsOrphanSchema(fullName string) error {
	name, err := ident.Parse(fullName)
	if err != nil {
		return err
	}
	ops, ok := tc.backendFor(name)
	if !ok {
		return fmt.Errorf("no backend registered for catalog of %s", fullName)
	}
	ops.schemas[name.Leaf()] = catalog.Schema{Name: name}
	return nil
}

// --- When ---

func (tc *TestContext) whenCreateSchemaNoProperties(fullName, comment string) error {
	return tc.doCreate(fullName, comment, nil)
}

func (tc *TestContext) whenCreateSchemaWithProperties(fullName, comment string, table *godog.Table) error {
	props, err := propertiesFromTable(table)
	if err != nil {
		return err
	}
	return tc.doCreate(fullName, comment, props)
}

func (tc *TestContext) doCreate(fullName, comment string, props map[string]string) error {
	name, err := ident.Parse(fullName)
	if err != nil {
		return err
	}
	tc.lastCS, tc.lastErr = tc.dispatcher.CreateSchema(context.Background(), name, comment, props)
	tc.rememberEntity(fullName, tc.lastCS)
	return nil
}

func (tc *TestContext) whenLoadSchema(fullName string) error {
	name, err := ident.Parse(fullName)
	if err != nil {
		return err
	}
	tc.lastCS, tc.lastErr = tc.dispatcher.LoadSchema(context.Background(), name)
	tc.rememberEntity(fullName, tc.lastCS)
	return nil
}

func (tc *TestContext) whenDropSchema(fullName string) error {
	name, err := ident.Parse(fullName)
	if err != nil {
		return err
	}
	tc.lastOK, tc.lastErr = tc.dispatcher.DropSchema(context.Background(), name, false)
	return nil
}

func (tc *TestContext) whenBackendRenames(oldFullName, newFullName string) error {
	oldName, err := ident.Parse(oldFullName)
	if err != nil {
		return err
	}
	newName, err := ident.Parse(newFullName)
	if err != nil {
		return err
	}
	ops, ok := tc.backendFor(oldName)
	if !ok {
		return fmt.Errorf("no backend registered for catalog of %s", oldFullName)
	}
	ops.rename(oldName.Leaf(), newName.Leaf(), newName)
	return nil
}

func (tc *TestContext) whenConcurrentlyAlter(fullName, key1, value1, key2, value2 string) error {
	name, err := ident.Parse(fullName)
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	changes := [][]catalog.Change{
		{{Kind: catalog.SetProperty, Key: key1, Value: value1}},
		{{Kind: catalog.SetProperty, Key: key2, Value: value2}},
	}
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = tc.dispatcher.AlterSchema(context.Background(), name, changes[i])
		}(i)
	}
	wg.Wait()
	tc.concurrentErrs = errs
	return nil
}

// --- Then ---

func (tc *TestContext) thenCreateSucceedsNoEntity() error {
	if tc.lastErr != nil {
		return fmt.Errorf("create failed: %w", tc.lastErr)
	}
	if tc.lastCS.Entity != nil {
		return fmt.Errorf("expected no entity, got %+v", tc.lastCS.Entity)
	}
	return nil
}

func (tc *TestContext) thenCreateSucceedsWithID(id int) error {
	if tc.lastErr != nil {
		return fmt.Errorf("create failed: %w", tc.lastErr)
	}
	if tc.lastCS.Entity == nil || tc.lastCS.Entity.ID != uint64(id) {
		return fmt.Errorf("expected entity id %d, got %+v", id, tc.lastCS.Entity)
	}
	return nil
}

func (tc *TestContext) thenLoadSucceedsNoEntity() error {
	if tc.lastErr != nil {
		return fmt.Errorf("load failed: %w", tc.lastErr)
	}
	if tc.lastCS.Entity != nil {
		return fmt.Errorf("expected no entity, got %+v", tc.lastCS.Entity)
	}
	return nil
}

func (tc *TestContext) thenLoadSucceedsWithID(id int) error {
	if tc.lastErr != nil {
		return fmt.Errorf("load failed: %w", tc.lastErr)
	}
	if tc.lastCS.Entity == nil || tc.lastCS.Entity.ID != uint64(id) {
		return fmt.Errorf("expected entity id %d, got %+v", id, tc.lastCS.Entity)
	}
	return nil
}

func (tc *TestContext) thenLoadFailsMultipleCatalogs() error {
	if !errors.Is(tc.lastErr, catalogerr.ErrMultipleCatalogsManageSchema) {
		return fmt.Errorf("expected ErrMultipleCatalogsManageSchema, got %v", tc.lastErr)
	}
	return nil
}

func (tc *TestContext) thenStoreNeverConsulted() error {
	if n := tc.store.callCount(); n != 0 {
		return fmt.Errorf("expected zero store calls, got %d", n)
	}
	return nil
}

func (tc *TestContext) thenBackendPropertiesIncludeTag(fullName string, id int) error {
	name, err := ident.Parse(fullName)
	if err != nil {
		return err
	}
	ops, ok := tc.backendFor(name)
	if !ok {
		return fmt.Errorf("no backend registered for catalog of %s", fullName)
	}
	s, ok := ops.schemas[name.Leaf()]
	if !ok {
		return fmt.Errorf("backend has no schema %s", fullName)
	}
	tag, ok := identitytag.Extract(s.Properties)
	if !ok || tag != uint64(id) {
		return fmt.Errorf("expected backend properties to carry identity tag %d, got %v", id, s.Properties)
	}
	return nil
}

func (tc *TestContext) thenVisiblePropertiesAre(table *godog.Table) error {
	want, err := propertiesFromTable(table)
	if err != nil {
		return err
	}
	got := tc.lastCS.VisibleProperties()
	if len(got) != len(want) {
		return fmt.Errorf("expected visible properties %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			return fmt.Errorf("expected visible properties %v, got %v", want, got)
		}
	}
	return nil
}

func (tc *TestContext) thenEntityStoreRowHas(fullName string, id int, name string) error {
	if tc.lastCS.Entity == nil {
		return fmt.Errorf("expected an entity on %s, got none", fullName)
	}
	if tc.lastCS.Entity.ID != uint64(id) {
		return fmt.Errorf("expected entity id %d, got %d", id, tc.lastCS.Entity.ID)
	}
	if tc.lastCS.Entity.Name != name {
		return fmt.Errorf("expected entity name %q, got %q", name, tc.lastCS.Entity.Name)
	}
	row, err := tc.store.GetByID(context.Background(), uint64(id))
	if err != nil {
		return fmt.Errorf("expected a store row with id %d for %s: %w", id, fullName, err)
	}
	if row.Name != name {
		return fmt.Errorf("expected store row %d to be named %q, got %q", id, name, row.Name)
	}
	return nil
}

func (tc *TestContext) thenDropSucceedsTrue() error {
	if tc.lastErr != nil {
		return fmt.Errorf("drop failed: %w", tc.lastErr)
	}
	if !tc.lastOK {
		return fmt.Errorf("expected drop result true, got false")
	}
	return nil
}

func (tc *TestContext) thenBothAltersSucceed() error {
	for i, err := range tc.concurrentErrs {
		if err != nil {
			return fmt.Errorf("alter %d failed: %w", i, err)
		}
	}
	return nil
}

func (tc *TestContext) thenFinalPropertyIsOneOf(key, fullName, v1, v2 string) error {
	name, err := ident.Parse(fullName)
	if err != nil {
		return err
	}
	cs, err := tc.dispatcher.LoadSchema(context.Background(), name)
	if err != nil {
		return fmt.Errorf("load after concurrent alters: %w", err)
	}
	got := cs.Backend.Properties[key]
	if got != v1 && got != v2 {
		return fmt.Errorf("expected property %q to be %q or %q, got %q", key, v1, v2, got)
	}
	return nil
}

// --- helpers ---

func propertiesFromTable(table *godog.Table) (map[string]string, error) {
	if len(table.Rows) < 2 {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(table.Rows)-1)
	for _, row := range table.Rows[1:] {
		if len(row.Cells) != 2 {
			return nil, fmt.Errorf("expected a key/value row, got %d cells", len(row.Cells))
		}
		out[row.Cells[0].Value] = row.Cells[1].Value
	}
	return out, nil
}
