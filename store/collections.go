package store

import (
	"maps"
	"slices"
)

// ---------- hash ----------

// HSet sets field in the hash stored at key, creating the hash if needed. It
// reports whether the field is new.
func (s *Store) HSet(key, field, value string) (bool, error) {
	n, err := s.HSetMany(key, map[string]string{field: value})
	return n == 1, err
}

// HSetMany sets several fields at once and returns how many were new.
func (s *Store) HSetMany(key string, fields map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindHash)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: KindHash, hash: make(map[string]string, len(fields))}
		s.items[key] = e
	}
	added := 0
	for f, v := range fields {
		if _, ok := e.hash[f]; !ok {
			added++
		}
		e.hash[f] = v
	}
	return added, nil
}

// HGet returns one field of the hash stored at key.
func (s *Store) HGet(key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindHash)
	if err != nil || e == nil {
		return "", false, err
	}
	v, ok := e.hash[field]
	return v, ok, nil
}

// HGetAll returns a copy of the hash stored at key. A missing key yields an
// empty, non-nil map.
func (s *Store) HGetAll(key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindHash)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return map[string]string{}, nil
	}
	return maps.Clone(e.hash), nil
}

// HDel removes fields from the hash and returns how many existed. The key is
// removed once the hash is empty.
func (s *Store) HDel(key string, fields ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindHash)
	if err != nil || e == nil {
		return 0, err
	}
	n := 0
	for _, f := range fields {
		if _, ok := e.hash[f]; ok {
			delete(e.hash, f)
			n++
		}
	}
	s.dropIfEmpty(key, e)
	return n, nil
}

// HLen returns the number of fields in the hash stored at key.
func (s *Store) HLen(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindHash)
	if err != nil || e == nil {
		return 0, err
	}
	return len(e.hash), nil
}

// ---------- list ----------

// LPush prepends values one at a time, so LPush(k, "a", "b") yields [b a].
// It returns the new length.
func (s *Store) LPush(key string, values ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.listForWrite(key)
	if err != nil {
		return 0, err
	}
	head := make([]string, 0, len(values)+len(e.list))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	e.list = append(head, e.list...)
	return len(e.list), nil
}

// RPush appends values and returns the new length.
func (s *Store) RPush(key string, values ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.listForWrite(key)
	if err != nil {
		return 0, err
	}
	e.list = append(e.list, values...)
	return len(e.list), nil
}

// LRange returns the elements between start and stop inclusive. Negative
// indexes count from the end (-1 is the last element); out-of-range indexes
// are clamped.
func (s *Store) LRange(key string, start, stop int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindList)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []string{}, nil
	}
	lo, hi, ok := normalizeRange(len(e.list), start, stop)
	if !ok {
		return []string{}, nil
	}
	return slices.Clone(e.list[lo : hi+1]), nil
}

// LTrim keeps only the elements between start and stop inclusive, using the
// same index rules as LRange. Trimming everything removes the key.
func (s *Store) LTrim(key string, start, stop int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindList)
	if err != nil || e == nil {
		return err
	}
	lo, hi, ok := normalizeRange(len(e.list), start, stop)
	if !ok {
		e.list = nil
	} else {
		e.list = slices.Clone(e.list[lo : hi+1])
	}
	s.dropIfEmpty(key, e)
	return nil
}

// LLen returns the length of the list stored at key.
func (s *Store) LLen(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindList)
	if err != nil || e == nil {
		return 0, err
	}
	return len(e.list), nil
}

func (s *Store) listForWrite(key string) (*entry, error) {
	e, err := s.lookupKind(key, KindList)
	if err != nil {
		return nil, err
	}
	if e == nil {
		e = &entry{kind: KindList}
		s.items[key] = e
	}
	return e, nil
}

// normalizeRange applies Redis LRANGE/LTRIM index rules to a list of length
// n and returns inclusive bounds.
func normalizeRange(n, start, stop int) (lo, hi int, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}

// ---------- set ----------

// SAdd adds members to the set stored at key and returns how many were not
// already present.
func (s *Store) SAdd(key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindSet)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: KindSet, set: make(map[string]struct{}, len(members))}
		s.items[key] = e
	}
	n := 0
	for _, m := range members {
		if _, ok := e.set[m]; !ok {
			e.set[m] = struct{}{}
			n++
		}
	}
	return n, nil
}

// SRem removes members and returns how many were present. The key is removed
// once the set is empty.
func (s *Store) SRem(key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindSet)
	if err != nil || e == nil {
		return 0, err
	}
	n := 0
	for _, m := range members {
		if _, ok := e.set[m]; ok {
			delete(e.set, m)
			n++
		}
	}
	s.dropIfEmpty(key, e)
	return n, nil
}

// SMembers returns the members of the set in ascending order.
func (s *Store) SMembers(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindSet)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []string{}, nil
	}
	return slices.Sorted(maps.Keys(e.set)), nil
}

// SIsMember reports whether member belongs to the set stored at key.
func (s *Store) SIsMember(key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindSet)
	if err != nil || e == nil {
		return false, err
	}
	_, ok := e.set[member]
	return ok, nil
}

// SCard returns the number of members in the set stored at key.
func (s *Store) SCard(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindSet)
	if err != nil || e == nil {
		return 0, err
	}
	return len(e.set), nil
}

// dropIfEmpty must be called with s.mu held.
func (s *Store) dropIfEmpty(key string, e *entry) {
	if e.empty() {
		delete(s.items, key)
	}
}
