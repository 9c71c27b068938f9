package domain

import (
	"fmt"
	"strings"
	"time"
)

type Field string

const (
	FieldStatus     Field = "status"
	FieldCreated    Field = "created"
	FieldCanceledAt Field = "canceled_at"
)

type Operator string

const (
	OpEqual          Operator = ":"
	OpLess           Operator = "<"
	OpGreater        Operator = ">"
	OpLessOrEqual    Operator = "<="
	OpGreaterOrEqual Operator = ">="
)

// Predicate is one clause of a provider search. Status clauses carry Text,
// timestamp clauses carry Unix seconds.
type Predicate struct {
	Field Field
	Op    Operator
	Text  string
	Unix  int64
}

func StatusIs(status SubscriptionStatus) Predicate {
	return Predicate{Field: FieldStatus, Op: OpEqual, Text: string(status)}
}

func Created(op Operator, at time.Time) Predicate {
	return Predicate{Field: FieldCreated, Op: op, Unix: at.Unix()}
}

func CanceledAt(op Operator, at time.Time) Predicate {
	return Predicate{Field: FieldCanceledAt, Op: op, Unix: at.Unix()}
}

func (p Predicate) String() string {
	if p.Field == FieldStatus {
		return fmt.Sprintf("%s%s'%s'", p.Field, p.Op, p.Text)
	}
	return fmt.Sprintf("%s%s%d", p.Field, p.Op, p.Unix)
}

// Query is a conjunction of predicates rendered in the Stripe search grammar.
type Query []Predicate

func And(predicates ...Predicate) Query {
	return Query(predicates)
}

func (q Query) String() string {
	parts := make([]string, 0, len(q))
	for _, p := range q {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, " AND ")
}

// Fields is the subset of a record a Query can be evaluated against.
type Fields struct {
	Status     string
	Created    time.Time
	CanceledAt *time.Time
}

func (r SubscriptionRecord) Fields() Fields {
	return Fields{Status: string(r.Status), Created: r.Created, CanceledAt: r.CanceledAt}
}

func (c CustomerRecord) Fields() Fields {
	return Fields{Created: c.Created}
}

// Match evaluates the query the way the provider would, at second precision.
func (q Query) Match(f Fields) bool {
	for _, p := range q {
		if !p.match(f) {
			return false
		}
	}
	return true
}

func (p Predicate) match(f Fields) bool {
	switch p.Field {
	case FieldStatus:
		return p.Op == OpEqual && f.Status != "" && f.Status == p.Text
	case FieldCreated:
		if f.Created.IsZero() {
			return false
		}
		return compare(f.Created.Unix(), p.Op, p.Unix)
	case FieldCanceledAt:
		if f.CanceledAt == nil {
			return false
		}
		return compare(f.CanceledAt.Unix(), p.Op, p.Unix)
	default:
		return false
	}
}

func compare(value int64, op Operator, bound int64) bool {
	switch op {
	case OpEqual:
		return value == bound
	case OpLess:
		return value < bound
	case OpGreater:
		return value > bound
	case OpLessOrEqual:
		return value <= bound
	case OpGreaterOrEqual:
		return value >= bound
	default:
		return false
	}
}
