package channeldb

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/wire"
	"go.etcd.io/bbolt"

	"github.com/lncore/lncore/revocation"
)

// AppendRevocation durably records the per-commitment secret revealed for
// commitment number ctn on the given channel, under its revocation.log
// sub-bucket. Records are appended in ctn order and never overwritten;
// bbolt's own commit fsyncs the write, matching spec.md's "each file write
// is fsync'd" persistence requirement without this core managing fsync
// itself.
func (d *DB) AppendRevocation(nodePub []byte, chanPoint wire.OutPoint, ctn uint64, secret revocation.Secret) error {
	return d.Update(func(tx *bbolt.Tx) error {
		revBucket, err := revocationBucketFor(tx, nodePub, chanPoint)
		if err != nil {
			return err
		}

		var key [8]byte
		binary.BigEndian.PutUint64(key[:], ctn)
		return revBucket.Put(key[:], secret[:])
	})
}

// LoadRevocationStore replays every persisted revocation record for the
// channel into a fresh revocation.Store, for use after a process restart.
// A record whose value isn't exactly 32 bytes (a torn tail from a crash
// mid-write) is discarded rather than causing the whole load to fail, per
// spec.md's torn-tail tolerance rule.
func (d *DB) LoadRevocationStore(nodePub []byte, chanPoint wire.OutPoint) (*revocation.Store, error) {
	store := revocation.NewStore()

	err := d.View(func(tx *bbolt.Tx) error {
		revBucket, err := revocationBucketForRead(tx, nodePub, chanPoint)
		if err != nil {
			return err
		}
		if revBucket == nil {
			return nil
		}

		return revBucket.ForEach(func(k, v []byte) error {
			if len(k) != 8 || len(v) != 32 {
				return nil
			}
			ctn := binary.BigEndian.Uint64(k)
			var secret revocation.Secret
			copy(secret[:], v)
			return store.Insert(secret, ctn)
		})
	})
	if err != nil {
		return nil, err
	}

	return store, nil
}

func revocationBucketFor(tx *bbolt.Tx, nodePub []byte, chanPoint wire.OutPoint) (*bbolt.Bucket, error) {
	chanBucket, err := channelBucketFor(tx, nodePub, chanPoint, true)
	if err != nil {
		return nil, err
	}
	return chanBucket.CreateBucketIfNotExists(revocationBucket)
}

func revocationBucketForRead(tx *bbolt.Tx, nodePub []byte, chanPoint wire.OutPoint) (*bbolt.Bucket, error) {
	chanBucket, err := channelBucketFor(tx, nodePub, chanPoint, false)
	if err != nil || chanBucket == nil {
		return nil, err
	}
	return chanBucket.Bucket(revocationBucket), nil
}

// channelBucketFor walks the open-channel bucket hierarchy down to the
// per-outpoint channel bucket, optionally creating the path if it's
// missing (used when appending to a channel that was just opened in the
// same transaction).
func channelBucketFor(tx *bbolt.Tx, nodePub []byte, chanPoint wire.OutPoint, create bool) (*bbolt.Bucket, error) {
	var openChanBucket *bbolt.Bucket
	var err error
	if create {
		openChanBucket, err = tx.CreateBucketIfNotExists(openChannelBucket)
	} else {
		openChanBucket = tx.Bucket(openChannelBucket)
	}
	if err != nil || openChanBucket == nil {
		return nil, err
	}

	var nodeChanBucket *bbolt.Bucket
	if create {
		nodeChanBucket, err = openChanBucket.CreateBucketIfNotExists(nodePub)
	} else {
		nodeChanBucket = openChanBucket.Bucket(nodePub)
	}
	if err != nil || nodeChanBucket == nil {
		return nil, err
	}

	var keyBuf bytes.Buffer
	if err := writeOutpoint(&keyBuf, &chanPoint); err != nil {
		return nil, err
	}
	key := keyBuf.Bytes()

	if create {
		return nodeChanBucket.CreateBucketIfNotExists(key)
	}
	return nodeChanBucket.Bucket(key), nil
}
