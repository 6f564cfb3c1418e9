package incident

import (
	"strings"
)

type Department string

const (
	Police          Department = "POLICE"
	Fire            Department = "FIRE"
	Medical         Department = "MEDICAL"
	PublicWorks     Department = "PUBLIC_WORKS"
	Environment     Department = "ENVIRONMENT"
	AnimalControl   Department = "ANIMAL_CONTROL"
	BuildingSafety  Department = "BUILDING_SAFETY"
	Transportation  Department = "TRANSPORTATION"
	ParksRecreation Department = "PARKS_RECREATION"
	Utilities       Department = "UTILITIES"
	General         Department = "GENERAL"
)

// AllDepartments lists the classification enum in guide order.
var AllDepartments = []Department{
	Police, Fire, Medical, PublicWorks, Environment, AnimalControl,
	BuildingSafety, Transportation, ParksRecreation, Utilities, General,
}

var departmentAliases = map[string]Department{
	"PARKS":                ParksRecreation,
	"PARKS_AND_RECREATION": ParksRecreation,
	"PUBLICWORKS":          PublicWorks,
	"ANIMAL":               AnimalControl,
	"BUILDING":             BuildingSafety,
	"UTILITY":              Utilities,
	"EMS":                  Medical,
}

// ParseDepartment normalizes a classification token. It tolerates case,
// spaces or hyphens instead of underscores, surrounding quotes and brackets,
// and a trailing "department".
func ParseDepartment(raw string) (Department, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "[]\"'`*. ")
	s = strings.ToUpper(s)
	s = strings.TrimPrefix(s, "THE ")
	s = strings.TrimSuffix(s, " DEPARTMENTS")
	s = strings.TrimSuffix(s, " DEPARTMENT")
	s = strings.TrimSuffix(s, " DEPT")
	s = strings.TrimSpace(s)
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '/'
	}), "_")
	s = strings.ReplaceAll(s, "_&_", "_AND_")
	if s == "" {
		return "", false
	}
	for _, d := range AllDepartments {
		if string(d) == s {
			return d, true
		}
	}
	if d, ok := departmentAliases[s]; ok {
		return d, true
	}
	return "", false
}

// DepartmentSet is an ordered set; insertion order is kept so the wire form
// matches what the assistant produced.
type DepartmentSet []Department

// Add appends d unless already present.
func (s DepartmentSet) Add(d Department) DepartmentSet {
	if s.Contains(d) {
		return s
	}
	return append(s, d)
}

func (s DepartmentSet) Contains(d Department) bool {
	for _, have := range s {
		if have == d {
			return true
		}
	}
	return false
}

func (s DepartmentSet) Empty() bool { return len(s) == 0 }

// String is the comma-joined wire form, e.g. "FIRE,MEDICAL".
func (s DepartmentSet) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}

func (s DepartmentSet) Clone() DepartmentSet {
	if s == nil {
		return nil
	}
	return append(DepartmentSet(nil), s...)
}

// ParseDepartmentList splits on commas and keeps the recognized tokens.
func ParseDepartmentList(raw string) DepartmentSet {
	var out DepartmentSet
	for _, tok := range strings.Split(raw, ",") {
		if d, ok := ParseDepartment(tok); ok {
			out = out.Add(d)
		}
	}
	return out
}
