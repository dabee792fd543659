package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/mmdatafocus/erp_core/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// ErrCrossTenantWrite is raised when a row being created names a business other than the caller's.
var ErrCrossTenantWrite = errors.New("row belongs to another business")

// TenantGuardPlugin keeps ledger and stock statements inside the caller's business.
// Reads, updates and deletes on tenant tables are filtered on business_id unless the statement already
// filters on it. Creates get BusinessId filled in when empty and are refused when it names another business.
// Raw and Exec SQL are not inspected.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("tenant_guard:create", stampTenant); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("tenant_guard:query", filterTenant); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenant_guard:row", filterTenant); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant_guard:update", filterTenant); err != nil {
		return err
	}
	return cb.Delete().Before("gorm:delete").Register("tenant_guard:delete", filterTenant)
}

// tenantColumn returns the caller's business and the model's business_id field, or ok=false when the
// statement is out of scope: no caller business, a bypass context, or a table without the column.
func tenantColumn(db *gorm.DB) (business string, field *schema.Field, ok bool) {
	stmt := db.Statement
	if stmt == nil || stmt.Schema == nil || stmt.Context == nil {
		return "", nil, false
	}
	if appctx.TenantScopeDisabled(stmt.Context) {
		return "", nil, false
	}
	if business = appctx.BusinessId(stmt.Context); business == "" {
		return "", nil, false
	}
	if field = stmt.Schema.LookUpField("business_id"); field == nil {
		return "", nil, false
	}
	return business, field, true
}

func filterTenant(db *gorm.DB) {
	business, field, ok := tenantColumn(db)
	if !ok {
		return
	}
	if where, found := db.Statement.Clauses["WHERE"]; found && restrictsBusiness(where.Expression) {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: db.Statement.Table, Name: field.DBName}, Value: business},
	}})
}

func stampTenant(db *gorm.DB) {
	business, field, ok := tenantColumn(db)
	if !ok {
		return
	}
	ctx := db.Statement.Context
	rv := db.Statement.ReflectValue
	stamp := func(row reflect.Value) {
		current, zero := field.ValueOf(ctx, row)
		if zero {
			if err := field.Set(ctx, row, business); err != nil {
				_ = db.AddError(err)
			}
			return
		}
		if s, _ := current.(string); s != business {
			_ = db.AddError(ErrCrossTenantWrite)
		}
	}
	switch rv.Kind() {
	case reflect.Struct:
		stamp(rv)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			row := reflect.Indirect(rv.Index(i))
			if row.Kind() == reflect.Struct {
				stamp(row)
			}
		}
	}
}

// restrictsBusiness reports whether a WHERE expression already pins business_id.
// Only conjunctions count: a business_id test under OR does not scope the statement.
func restrictsBusiness(expr clause.Expression) bool {
	where, ok := expr.(clause.Where)
	if !ok {
		return false
	}
	return anyRestricts(where.Exprs)
}

func anyRestricts(exprs []clause.Expression) bool {
	for _, e := range exprs {
		switch v := e.(type) {
		case clause.Eq:
			if businessColumn(v.Column) {
				return true
			}
		case clause.IN:
			if businessColumn(v.Column) {
				return true
			}
		case clause.AndConditions:
			if anyRestricts(v.Exprs) {
				return true
			}
		case clause.Expr:
			if sqlNamesBusiness(v.SQL) {
				return true
			}
		case clause.NamedExpr:
			if sqlNamesBusiness(v.SQL) {
				return true
			}
		}
	}
	return false
}

func sqlNamesBusiness(sql string) bool {
	sql = strings.ToLower(sql)
	return strings.Contains(sql, "business_id") && !strings.Contains(sql, " or ")
}

func businessColumn(col interface{}) bool {
	var name string
	switch c := col.(type) {
	case string:
		name = c
	case clause.Column:
		name = c.Name
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.EqualFold(name, "business_id")
}
