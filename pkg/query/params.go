package query

import "strconv"

const (
	objectParameterPrefix     = "objectParameter_"
	collectionParameterPrefix = "collectionParameter_"
)

// Params is the set of values bound to one statement. Scalars and
// collections are kept apart; a collection binds to one IN list.
type Params struct {
	objects     map[string]any
	collections map[string]any
}

// NewParams returns an empty registry
func NewParams() *Params {
	return &Params{
		objects:     make(map[string]any),
		collections: make(map[string]any),
	}
}

// AddObject binds a scalar value and returns its placeholder name
func (p *Params) AddObject(value any) string {
	name := objectParameterPrefix + strconv.Itoa(len(p.objects))
	p.objects[name] = value
	return name
}

// AddCollection binds a slice value and returns its placeholder name
func (p *Params) AddCollection(values any) string {
	name := collectionParameterPrefix + strconv.Itoa(len(p.collections))
	p.collections[name] = values
	return name
}

// Len returns the number of bound placeholders
func (p *Params) Len() int {
	return len(p.objects) + len(p.collections)
}

// Values merges both buckets into the map handed to the executor
func (p *Params) Values() map[string]any {
	values := make(map[string]any, p.Len())
	for k, v := range p.objects {
		values[k] = v
	}
	for k, v := range p.collections {
		values[k] = v
	}
	return values
}
