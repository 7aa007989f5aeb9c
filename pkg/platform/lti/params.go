// pkg/platform/lti/params.go
package lti

import (
	"encoding/json"
	"net/url"
)

// Param is one launch parameter.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Params is an insertion-ordered parameter set. Setting an existing name
// replaces the value in place.
type Params struct {
	list  []Param
	index map[string]int
}

// Set adds or replaces name.
func (p *Params) Set(name, value string) {
	if p.index == nil {
		p.index = map[string]int{}
	}
	if i, ok := p.index[name]; ok {
		p.list[i].Value = value
		return
	}
	p.index[name] = len(p.list)
	p.list = append(p.list, Param{Name: name, Value: value})
}

// Get returns the value and whether name is present.
func (p *Params) Get(name string) (string, bool) {
	if p == nil || p.index == nil {
		return "", false
	}
	i, ok := p.index[name]
	if !ok {
		return "", false
	}
	return p.list[i].Value, true
}

// Value returns the value of name or "".
func (p *Params) Value(name string) string {
	v, _ := p.Get(name)
	return v
}

// Del removes name.
func (p *Params) Del(name string) {
	i, ok := p.index[name]
	if !ok {
		return
	}
	p.list = append(p.list[:i], p.list[i+1:]...)
	delete(p.index, name)
	for j := i; j < len(p.list); j++ {
		p.index[p.list[j].Name] = j
	}
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.list)
}

// List returns a copy of the parameters in order.
func (p *Params) List() []Param {
	if p == nil {
		return nil
	}
	return append([]Param(nil), p.list...)
}

// Values converts to url.Values.
func (p *Params) Values() url.Values {
	v := url.Values{}
	for _, kv := range p.List() {
		v.Set(kv.Name, kv.Value)
	}
	return v
}

func (p *Params) Clone() *Params {
	cp := &Params{}
	for _, kv := range p.List() {
		cp.Set(kv.Name, kv.Value)
	}
	return cp
}

func (p *Params) MarshalJSON() ([]byte, error) {
	l := p.List()
	if l == nil {
		l = []Param{}
	}
	return json.Marshal(l)
}

func (p *Params) UnmarshalJSON(b []byte) error {
	var l []Param
	if err := json.Unmarshal(b, &l); err != nil {
		return err
	}
	*p = Params{}
	for _, kv := range l {
		p.Set(kv.Name, kv.Value)
	}
	return nil
}
