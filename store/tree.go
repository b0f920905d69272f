package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Tree implements Store on top of a Backend. Writes below a top-level key
// load that key, modify it and store it back under the tree lock.
type Tree struct {
	mu sync.Mutex
	b  Backend
}

var _ Store = (*Tree)(nil)

func NewTree(b Backend) *Tree {
	return &Tree{b: b}
}

func (t *Tree) Get(path []string) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(path) == 0 {
		all, err := t.b.GetAll()
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, nil
		}
		return all, nil
	}

	top, err := t.b.Get(path[0])
	if err != nil {
		return nil, err
	}
	return getIn(top, path[1:]), nil
}

func (t *Tree) Set(path []string, value any) error {
	v, err := deepCopy(value)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set(path, v)
}

// Update writes each field below path; a field key may itself be a slash
// separated path. Every field is validated and applied in memory before
// the first backend write, so a rejected field leaves the tree unchanged.
// Fields under different top-level keys are stored key by key, and a
// backend failure part way through can leave earlier keys written.
func (t *Tree) Update(path []string, fields map[string]any) error {
	subs := make([][]string, 0, len(fields))
	values := make([]any, 0, len(fields))
	for field, value := range fields {
		rel := splitPath(field)
		if len(rel) == 0 {
			return fmt.Errorf("%w: %q", ErrEmptyField, field)
		}
		v, err := deepCopy(value)
		if err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
		subs = append(subs, append(append([]string{}, path...), rel...))
		values = append(values, v)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	staged := make(map[string]any, len(subs))
	for i, sub := range subs {
		top, ok := staged[sub[0]]
		if !ok {
			var err error
			if top, err = t.b.Get(sub[0]); err != nil {
				return err
			}
		}
		staged[sub[0]] = setIn(top, sub[1:], values[i])
	}

	for key, v := range staged {
		if v == nil {
			if _, err := t.b.Delete(key); err != nil {
				return err
			}
			continue
		}
		if err := t.b.Put(key, v); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) Push(path []string, value any) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	name := id.String()
	v, err := deepCopy(value)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	sub := append(append([]string{}, path...), name)
	if err := t.set(sub, v); err != nil {
		return "", err
	}
	return name, nil
}

func (t *Tree) Delete(path []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set(path, nil)
}

func (t *Tree) Close() error {
	return t.b.Close()
}

// set writes value at path; the caller holds the lock.
func (t *Tree) set(path []string, value any) error {
	if len(path) == 0 {
		return t.setRoot(prune(value))
	}

	top, err := t.b.Get(path[0])
	if err != nil {
		return err
	}
	next := setIn(top, path[1:], value)
	if next == nil {
		_, err := t.b.Delete(path[0])
		return err
	}
	return t.b.Put(path[0], next)
}

func (t *Tree) setRoot(value any) error {
	obj, ok := value.(map[string]any)
	if value != nil && !ok {
		return ErrRootNotObject
	}
	keys, err := t.b.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, keep := obj[k]; keep {
			continue
		}
		if _, err := t.b.Delete(k); err != nil {
			return err
		}
	}
	for k, v := range obj {
		if err := t.b.Put(k, v); err != nil {
			return err
		}
	}
	return nil
}

// splitPath breaks a slash separated key into segments, dropping empty
// ones.
func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func getIn(v any, path []string) any {
	for _, seg := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		if v, ok = obj[seg]; !ok {
			return nil
		}
	}
	return v
}

// setIn returns v with value written at path. A nil result means v became
// empty and should be removed from its parent.
func setIn(v any, path []string, value any) any {
	if len(path) == 0 {
		return prune(value)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		obj = map[string]any{}
	}
	child := setIn(obj[path[0]], path[1:], value)
	if child == nil {
		delete(obj, path[0])
	} else {
		obj[path[0]] = child
	}
	if len(obj) == 0 {
		return nil
	}
	return obj
}

// prune drops null leaves and empty objects.
func prune(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range obj {
		if p := prune(child); p == nil {
			delete(obj, k)
		} else {
			obj[k] = p
		}
	}
	if len(obj) == 0 {
		return nil
	}
	return obj
}
