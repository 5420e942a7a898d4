package database

import (
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConditionFunc func(*Condition) *Condition

type Condition struct {
	ID         string
	Identifier string

	ProjectID string
	GatewayID string
	DeviceID  string

	Keyword string

	Columns map[string]any

	From time.Time
	To   time.Time
}

func NewCondition(conditions ...ConditionFunc) *Condition {
	c := &Condition{}
	for _, f := range conditions {
		f(c)
	}
	return c
}

func (c Condition) scope(s Schema) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		eq := func(column string, value any) clause.Expression {
			return clause.Eq{Column: clause.Column{Name: column}, Value: value}
		}

		if c.ID != "" {
			db = db.Where(eq("id", c.ID))
		}

		if c.Identifier != "" {
			exprs := make([]clause.Expression, 0, len(s.identifiers))
			for _, col := range s.identifiers {
				exprs = append(exprs, eq(col, c.Identifier))
			}
			db = db.Where(clause.Or(exprs...))
		}

		if c.ProjectID != "" {
			db = db.Where(eq("project_id", c.ProjectID))
		}

		if c.GatewayID != "" {
			db = db.Where(eq("gateway_id", c.GatewayID))
		}

		if c.DeviceID != "" {
			db = db.Where(eq("device_id", c.DeviceID))
		}

		for column, value := range c.Columns {
			db = db.Where(eq(column, value))
		}

		if c.Keyword != "" && len(s.searchable) > 0 {
			pattern := "%" + strings.ToLower(c.Keyword) + "%"
			exprs := make([]clause.Expression, 0, len(s.searchable))
			for _, col := range s.searchable {
				exprs = append(exprs, clause.Expr{SQL: "LOWER(?) LIKE ?", Vars: []any{clause.Column{Name: col}, pattern}})
			}
			db = db.Where(clause.Or(exprs...))
		}

		if !c.From.IsZero() {
			db = db.Where(clause.Gte{Column: clause.Column{Name: "timestamp"}, Value: c.From.UTC()})
		}

		if !c.To.IsZero() {
			db = db.Where(clause.Lte{Column: clause.Column{Name: "timestamp"}, Value: c.To.UTC()})
		}

		return db
	}
}

func WithID(id string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.ID = id
		return c
	}
}

// WithIdentifier matches any of the identifying columns of an entity, for gateways that is
// both the internal id and the gateway supplied id.
func WithIdentifier(identifier string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.Identifier = identifier
		return c
	}
}

func WithProjectID(projectID string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.ProjectID = projectID
		return c
	}
}

func WithGatewayID(gatewayID string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.GatewayID = gatewayID
		return c
	}
}

func WithDeviceID(deviceID string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.DeviceID = deviceID
		return c
	}
}

// WithColumn adds an equality match on a column that has no dedicated condition.
func WithColumn(column string, value any) ConditionFunc {
	return func(c *Condition) *Condition {
		if c.Columns == nil {
			c.Columns = map[string]any{}
		}
		c.Columns[column] = value
		return c
	}
}

var re = regexp.MustCompile(`[^a-zA-ZåäöÅÄÖ0-9 \-,;:().]+`)

func WithKeyword(keyword string) ConditionFunc {
	return func(c *Condition) *Condition {
		keyword = re.ReplaceAllString(keyword, "")
		c.Keyword = strings.TrimSpace(keyword)
		return c
	}
}

func WithTimeRange(from, to time.Time) ConditionFunc {
	return func(c *Condition) *Condition {
		c.From = from
		c.To = to
		return c
	}
}
