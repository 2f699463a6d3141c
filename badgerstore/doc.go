// Package badgerstore is a registry.Backend on an embedded badger database.
//
// Key layout:
//
//	r/<id>                          record, cbor
//	i/<kind>/<hex key>/<seq BE u64> index entry, raw id
//	n/<kind>/<hex key>              index length, BE u64
//	c/<hex code>                    chain ends, cbor
//
// Index keys are hex encoded so arbitrary item codes and types cannot collide
// with the separators. Entries of one index sort by sequence number, so a
// prefix scan returns them in insertion order.
package badgerstore
