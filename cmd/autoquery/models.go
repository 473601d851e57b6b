package main

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/bitechdev/autoquery/pkg/autoquery"
	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/crud"
	"github.com/bitechdev/autoquery/pkg/modelregistry"
)

type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	Id          int64      `bun:"id,pk,autoincrement" json:"id"`
	Name        string     `bun:"name" json:"name"`
	City        string     `bun:"city" json:"city"`
	Credit      float64    `bun:"credit" json:"credit"`
	CreatedDate time.Time  `bun:"created_date" json:"createdDate"`
	DeletedDate *time.Time `bun:"deleted_date,nullzero" json:"deletedDate,omitempty" autoquery:"softdelete"`
	Version     int64      `bun:"version" json:"version" autoquery:"rowversion"`
}

type QueryCustomers struct {
	autoquery.QueryBase
	NameStartsWith *string  `json:"nameStartsWith,omitempty"`
	City           *string  `json:"city,omitempty"`
	CreditAbove    *float64 `json:"creditAbove,omitempty"`
}

type CreateCustomer struct {
	Name        string    `json:"name"`
	City        string    `json:"city"`
	Credit      float64   `json:"credit"`
	CreatedDate time.Time `json:"createdDate"`
}

type PatchCustomer struct {
	crud.Base
	Id      int64    `json:"id"`
	City    *string  `json:"city,omitempty"`
	Credit  *float64 `json:"credit,omitempty"`
	Version int64    `json:"version,omitempty"`
}

type DeleteCustomer struct {
	Id int64 `json:"id"`
}

const customersDDL = `CREATE TABLE IF NOT EXISTS customers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	city TEXT NOT NULL DEFAULT '',
	credit REAL NOT NULL DEFAULT 0,
	created_date TIMESTAMP,
	deleted_date TIMESTAMP NULL,
	version INTEGER NOT NULL DEFAULT 0
)`

func createSchema(ctx context.Context, db common.Database) error {
	_, err := db.Exec(ctx, customersDDL)
	return err
}

func registerRequests(e *autoquery.Engine) {
	notDeleted := []autoquery.AutoFilter{{Field: "DeletedDate"}}
	stamp := []autoquery.ValueRule{{Field: "CreatedDate", Eval: "now"}}

	e.MustRegister(&QueryCustomers{}, Customer{}, autoquery.Rules{AutoFilters: notDeleted})
	e.MustRegister(&CreateCustomer{}, Customer{}, autoquery.Rules{Populate: stamp})
	e.MustRegister(&PatchCustomer{}, Customer{}, autoquery.Rules{AutoFilters: notDeleted, DenyReset: []string{"Name"}})
	e.MustRegister(&DeleteCustomer{}, Customer{}, autoquery.Rules{AutoFilters: notDeleted})
}

// replayRegistry resolves the request types named in recorded events
func replayRegistry() (*modelregistry.DefaultModelRegistry, error) {
	r := modelregistry.NewModelRegistry()
	// mutations only; the query request is never recorded
	rules := modelregistry.DefaultRequestRules()
	rules.CanQuery = false
	for name, req := range map[string]interface{}{
		"CreateCustomer": CreateCustomer{},
		"PatchCustomer":  PatchCustomer{},
		"DeleteCustomer": DeleteCustomer{},
	} {
		if err := r.RegisterModelWithRules(name, req, rules); err != nil {
			return nil, err
		}
	}
	return r, nil
}
