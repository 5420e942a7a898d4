package database

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Relation is a typed eager loading path. A nested relation such as gateway.project loads
// the gateway and then the project of each loaded gateway.
type Relation string

const (
	RelationProject        Relation = "project"
	RelationGateway        Relation = "gateway"
	RelationGatewayProject Relation = "gateway.project"
	RelationDevice         Relation = "device"
	RelationDeviceGateway  Relation = "device.gateway"
)

// Schema describes what a query against an entity is allowed to sort, search and load.
type Schema struct {
	name        string
	sortable    map[string]string
	searchable  []string
	identifiers []string
	relations   map[Relation]string
}

var ProjectSchema = Schema{
	name: "project",
	sortable: map[string]string{
		"name":        "name",
		"description": "description",
		"createdAt":   "created_at",
		"updatedAt":   "updated_at",
	},
	searchable:  []string{"name", "description"},
	identifiers: []string{"id"},
	relations:   map[Relation]string{},
}

var GatewaySchema = Schema{
	name: "gateway",
	sortable: map[string]string{
		"name":        "name",
		"gatewayId":   "external_id",
		"description": "description",
		"createdAt":   "created_at",
		"updatedAt":   "updated_at",
	},
	searchable:  []string{"name", "description", "external_id"},
	identifiers: []string{"id", "external_id"},
	relations: map[Relation]string{
		RelationProject: "Project",
	},
}

var DeviceSchema = Schema{
	name: "device",
	sortable: map[string]string{
		"name":      "name",
		"deviceId":  "unit_id",
		"type":      "type",
		"state":     "state",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	},
	searchable:  []string{"name"},
	identifiers: []string{"id"},
	relations: map[Relation]string{
		RelationGateway:        "Gateway",
		RelationGatewayProject: "Gateway.Project",
	},
}

var DeviceLogSchema = Schema{
	name: "deviceLog",
	sortable: map[string]string{
		"timestamp": "timestamp",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	},
	identifiers: []string{"id"},
	relations: map[Relation]string{
		RelationDevice:         "Device",
		RelationDeviceGateway:  "Device.Gateway",
		RelationGateway:        "Gateway",
		RelationGatewayProject: "Gateway.Project",
	},
}

var FaultSchema = Schema{
	name: "fault",
	sortable: map[string]string{
		"timestamp": "timestamp",
		"code":      "code",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	},
	searchable:  []string{"code", "description"},
	identifiers: []string{"id"},
	relations: map[Relation]string{
		RelationGateway:        "Gateway",
		RelationGatewayProject: "Gateway.Project",
		RelationDevice:         "Device",
	},
}

var ActivityLogSchema = Schema{
	name: "activityLog",
	sortable: map[string]string{
		"timestamp": "timestamp",
		"actor":     "actor",
		"action":    "action",
		"createdAt": "created_at",
	},
	searchable:  []string{"actor", "action", "description"},
	identifiers: []string{"id"},
	relations: map[Relation]string{
		RelationGateway: "Gateway",
	},
}

type SortField struct {
	Field string
	Desc  bool
}

type QueryOptions struct {
	SortBy   []SortField
	Populate []Relation
	PageSize int
	PageNum  int
}

const (
	DefaultPageSize int = 10
	DefaultPageNum  int = 1
	MaxPageSize     int = 1000
)

func (o QueryOptions) WithDefaults() QueryOptions {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	if o.PageNum <= 0 {
		o.PageNum = DefaultPageNum
	}
	return o
}

// offset is false when the page starts beyond anything an int can address.
func (o QueryOptions) offset() (int, bool) {
	if o.PageNum-1 > math.MaxInt/o.PageSize {
		return 0, false
	}
	return (o.PageNum - 1) * o.PageSize, true
}

// ParseSortBy splits field:direction tokens. Anything but desc sorts ascending.
func ParseSortBy(sortBy string) []SortField {
	fields := []SortField{}

	for _, token := range strings.Split(sortBy, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		field, order, _ := strings.Cut(token, ":")
		fields = append(fields, SortField{
			Field: strings.TrimSpace(field),
			Desc:  strings.EqualFold(strings.TrimSpace(order), "desc"),
		})
	}

	return fields
}

func ParsePopulate(populate string) []Relation {
	relations := []Relation{}

	for _, p := range strings.Split(populate, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			relations = append(relations, Relation(p))
		}
	}

	return lo.Uniq(relations)
}

// ParsePage converts a page parameter. Empty values map to zero so that defaults apply.
func ParsePage(value string) (int, error) {
	if value == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidOptions, value)
	}

	return n, nil
}

func (s Schema) Validate(o QueryOptions) error {
	for _, f := range o.SortBy {
		if _, ok := s.sortable[f.Field]; !ok {
			return fmt.Errorf("%w: cannot sort %s by %q", ErrInvalidOptions, s.name, f.Field)
		}
	}

	for _, r := range o.Populate {
		if _, ok := s.relations[r]; !ok {
			return fmt.Errorf("%w: cannot populate %q on %s", ErrInvalidOptions, r, s.name)
		}
	}

	return nil
}

// order skips fields that the entity does not know about, options may be shared
// between queries against different entities.
func (s Schema) order(fields []SortField) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		ordered := false

		for _, f := range fields {
			column, ok := s.sortable[f.Field]
			if !ok {
				continue
			}
			db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: f.Desc})
			ordered = true
		}

		if !ordered {
			db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}})
		}

		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	}
}

func (s Schema) preload(relations []Relation) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, r := range relations {
			if path, ok := s.relations[r]; ok {
				db = db.Preload(path)
			}
		}
		return db
	}
}
