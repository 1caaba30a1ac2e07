// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package kv

import bolt "go.etcd.io/bbolt"

// InternEmpty is the reserved id for "absent"; real strings never get id 0.
const InternEmpty uint32 = 0

// Intern maps s to its u32 id, allocating a fresh id on first sight. The
// empty string always maps to InternEmpty without consuming a counter
// value or touching the tables.
func (s *Store) Intern(str string) (uint32, error) {
	if str == "" {
		return InternEmpty, nil
	}
	var id uint32
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket([]byte(bucketStringIndex))
		if v := idx.Get([]byte(str)); v != nil {
			id = keyToU32(v)
			return nil
		}
		id64, err := nextID(tx, counterStringID)
		if err != nil {
			return err
		}
		id = uint32(id64)
		strings_ := tx.Bucket([]byte(bucketStrings))
		if err := strings_.Put(u32key(id), []byte(str)); err != nil {
			return err
		}
		return idx.Put([]byte(str), u32key(id))
	})
	return id, err
}

// Resolve maps a u32 id back to its string. InternEmpty resolves to "".
func (s *Store) Resolve(id uint32) (string, error) {
	if id == InternEmpty {
		return "", nil
	}
	var str string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketStrings)).Get(u32key(id))
		if v != nil {
			str = string(v)
		}
		return nil
	})
	return str, err
}
