// Package channelstore persists channel.Channel state to a local bbolt
// database, keyed by channel ID (the funding transaction's txid), so a
// process can resume a channel session across restarts. Grounded on
// breez-lightninglib/channeldb's single-file-per-node bbolt database with
// one bucket per entity (see channeldb/channel.go's openChannelBucket).
package channelstore

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/channel"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/walletiface"
)

// channelBucket holds one record per channel, keyed by channel ID.
var channelBucket = []byte("open-channel-bucket")

// ErrNotFound is returned by Get and Delete when no record exists for the
// given channel ID.
var ErrNotFound = thorerrors.ErrChannelNotFound

// Store is a bbolt-backed key-value store mapping a channel's ID to its
// serialized state.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt database at path and
// initializes its top-level bucket.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("channelstore: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(channelBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("channelstore: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put serializes c and stores it under its channel ID, overwriting any
// prior record for the same channel.
func (s *Store) Put(c *channel.Channel) error {
	id := c.ID()
	b, err := encodeChannel(snapshotChannel(c))
	if err != nil {
		return fmt.Errorf("channelstore: encode channel %x: %w", id, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(channelBucket).Put(id[:], b)
	})
}

// Get loads the channel stored under id, attaching wallet and transport
// (which are never persisted) to the result.
func (s *Store) Get(id [32]byte, wallet walletiface.BitcoinWallet, transport chanmsg.Transport) (*channel.Channel, error) {
	var raw []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(channelBucket).Get(id[:])
		if v == nil {
			return ErrNotFound
		}
		raw = append([]byte(nil), v...)
		return nil
	}); err != nil {
		return nil, err
	}

	pc, err := decodeChannel(raw)
	if err != nil {
		return nil, fmt.Errorf("channelstore: decode channel %x: %w", id, err)
	}
	c, err := rebuildChannel(pc, wallet, transport)
	if err != nil {
		return nil, fmt.Errorf("channelstore: rebuild channel %x: %w", id, err)
	}
	return c, nil
}

// Delete removes the record stored under id, if any.
func (s *Store) Delete(id [32]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(channelBucket)
		if bkt.Get(id[:]) == nil {
			return ErrNotFound
		}
		return bkt.Delete(id[:])
	})
}

// List returns the IDs of every channel currently stored, in the
// database's native key order.
func (s *Store) List() ([][32]byte, error) {
	var ids [][32]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(channelBucket).ForEach(func(k, _ []byte) error {
			var id [32]byte
			copy(id[:], k)
			ids = append(ids, id)
			return nil
		})
	})
	return ids, err
}
