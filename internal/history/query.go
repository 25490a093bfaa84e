package history

import (
	"fmt"
	"strings"
)

// Kind is the storage type of a filterable column.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindReal
	KindTimestamp
	KindDuration
	KindResult
)

type Column int

const (
	ColumnID Column = iota
	ColumnProjectID
	ColumnProjectRun
	ColumnProjectClone
	ColumnProjectGen
	ColumnName
	ColumnPath
	ColumnUsername
	ColumnTeam
	ColumnCoreVersion
	ColumnFramesCompleted
	ColumnFrameTime
	ColumnResult
	ColumnAssigned
	ColumnFinished
	ColumnWorkUnitName
	ColumnKFactor
	ColumnCore
	ColumnFrames
	ColumnAtoms
	ColumnBaseCredit
	ColumnPreferredDays
	ColumnMaximumDays
	ColumnSlotType
	columnCount
)

type columnInfo struct {
	name string
	sql  string
	kind Kind
}

// columns maps each tag to its SQL expression inside the history select.
var columns = [columnCount]columnInfo{
	ColumnID:              {"ID", "ID", KindInteger},
	ColumnProjectID:       {"ProjectID", "ProjectID", KindInteger},
	ColumnProjectRun:      {"ProjectRun", "ProjectRun", KindInteger},
	ColumnProjectClone:    {"ProjectClone", "ProjectClone", KindInteger},
	ColumnProjectGen:      {"ProjectGen", "ProjectGen", KindInteger},
	ColumnName:            {"Name", "Name", KindString},
	ColumnPath:            {"Path", "Path", KindString},
	ColumnUsername:        {"Username", "Username", KindString},
	ColumnTeam:            {"Team", "Team", KindInteger},
	ColumnCoreVersion:     {"CoreVersion", "CoreVersion", KindReal},
	ColumnFramesCompleted: {"FramesCompleted", "FramesCompleted", KindInteger},
	ColumnFrameTime:       {"FrameTime", "FrameTime", KindDuration},
	ColumnResult:          {"Result", "Result", KindResult},
	ColumnAssigned:        {"Assigned", "Assigned", KindTimestamp},
	ColumnFinished:        {"Finished", "Finished", KindTimestamp},
	ColumnWorkUnitName:    {"WorkUnitName", "WorkUnitName", KindString},
	ColumnKFactor:         {"KFactor", "KFactor", KindReal},
	ColumnCore:            {"Core", "Core", KindString},
	ColumnFrames:          {"Frames", "Frames", KindInteger},
	ColumnAtoms:           {"Atoms", "Atoms", KindInteger},
	ColumnBaseCredit:      {"BaseCredit", "Credit", KindReal},
	ColumnPreferredDays:   {"PreferredDays", "PreferredDays", KindReal},
	ColumnMaximumDays:     {"MaximumDays", "MaximumDays", KindReal},
	ColumnSlotType:        {"SlotType", "SlotType", KindString},
}

// Columns lists every filterable column in display order.
func Columns() []Column {
	out := make([]Column, 0, columnCount)
	for c := Column(0); c < columnCount; c++ {
		out = append(out, c)
	}
	return out
}

func (c Column) Valid() bool {
	return c >= 0 && c < columnCount
}

func (c Column) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Column(%d)", int(c))
	}
	return columns[c].name
}

func (c Column) Kind() Kind {
	if !c.Valid() {
		return KindString
	}
	return columns[c].kind
}

func ParseColumn(s string) (Column, error) {
	for c := Column(0); c < columnCount; c++ {
		if strings.EqualFold(columns[c].name, strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, s)
}

func (c Column) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownColumn, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Column) UnmarshalText(b []byte) error {
	v, err := ParseColumn(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type Operator int

const (
	Equal Operator = iota
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	Like
	NotLike
	operatorCount
)

var operators = [operatorCount]struct {
	name string
	sql  string
}{
	Equal:              {"Equal", "="},
	NotEqual:           {"NotEqual", "!="},
	GreaterThan:        {"GreaterThan", ">"},
	GreaterThanOrEqual: {"GreaterThanOrEqual", ">="},
	LessThan:           {"LessThan", "<"},
	LessThanOrEqual:    {"LessThanOrEqual", "<="},
	Like:               {"Like", "LIKE"},
	NotLike:            {"NotLike", "NOT LIKE"},
}

func (o Operator) Valid() bool {
	return o >= 0 && o < operatorCount
}

func (o Operator) String() string {
	if !o.Valid() {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operators[o].name
}

func ParseOperator(s string) (Operator, error) {
	key := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	for o := Operator(0); o < operatorCount; o++ {
		if strings.EqualFold(operators[o].name, key) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

func (o Operator) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOperator, int(o))
	}
	return []byte(o.String()), nil
}

func (o *Operator) UnmarshalText(b []byte) error {
	v, err := ParseOperator(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

type Predicate struct {
	Column   Column   `json:"column" yaml:"column"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Query is a named conjunction of predicates. No predicates selects all rows.
type Query struct {
	Name       string      `json:"name" yaml:"name"`
	Predicates []Predicate `json:"predicates,omitempty" yaml:"predicates,omitempty"`
}

// SelectAllName is the reserved name of the unfiltered query.
const SelectAllName = "*** SELECT ALL ***"

var SelectAll = Query{Name: SelectAllName}

func (q Query) IsSelectAll() bool {
	return len(q.Predicates) == 0
}

// Where appends a predicate and returns the extended query.
func (q Query) Where(col Column, op Operator, value any) Query {
	preds := make([]Predicate, len(q.Predicates), len(q.Predicates)+1)
	copy(preds, q.Predicates)
	q.Predicates = append(preds, Predicate{Column: col, Operator: op, Value: value})
	return q
}
