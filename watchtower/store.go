package watchtower

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"go.etcd.io/bbolt"
)

// retributionBucket persists pending Retribution records across restarts,
// keyed by the channel's funding outpoint, so a justice transaction is
// never lost to a crash between detecting a breach and broadcasting its
// sweep.
var retributionBucket = []byte("watchtower-retribution")

// Store is a small boltdb-backed journal of outstanding retributions.
type Store struct {
	db *bbolt.DB
}

// NewStore opens (creating if absent) the retribution bucket in db.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(retributionBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Add persists r, overwriting any previous record for the same chan point.
func (s *Store) Add(r *Retribution) error {
	var buf bytes.Buffer
	if err := encodeRetribution(&buf, r); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(retributionBucket)
		key := outpointKey(r.ChanPoint)
		return b.Put(key[:], buf.Bytes())
	})
}

// Remove deletes the retribution record for chanPoint. The Monitor calls
// it once the justice transaction has been broadcast successfully.
func (s *Store) Remove(chanPoint wire.OutPoint) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(retributionBucket)
		key := outpointKey(chanPoint)
		return b.Delete(key[:])
	})
}

// ForEach invokes fn for every pending retribution, e.g. to re-arm
// confirmation watchers after a restart.
func (s *Store) ForEach(fn func(*Retribution) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(retributionBucket)
		return b.ForEach(func(k, v []byte) error {
			r, err := decodeRetribution(bytes.NewReader(v))
			if err != nil {
				return err
			}
			return fn(r)
		})
	})
}

func outpointKey(op wire.OutPoint) [36]byte {
	var key [36]byte
	copy(key[:32], op.Hash[:])
	binary.BigEndian.PutUint32(key[32:], op.Index)
	return key
}

func encodeRetribution(w *bytes.Buffer, r *Retribution) error {
	w.Write(r.ChanPoint.Hash[:])
	binary.Write(w, binary.BigEndian, r.ChanPoint.Index)
	w.Write(r.BreachTxid[:])
	binary.Write(w, binary.BigEndian, r.CommitHeight)
	w.Write(r.RevocationPrivKey.Serialize())
	w.Write(r.LocalDelayPrivKey.Serialize())
	binary.Write(w, binary.BigEndian, r.CsvTimeout)
	binary.Write(w, binary.BigEndian, r.LocalOutputIndex)
	binary.Write(w, binary.BigEndian, int64(r.LocalOutputAmount))

	binary.Write(w, binary.BigEndian, uint32(len(r.HTLCs)))
	for _, h := range r.HTLCs {
		binary.Write(w, binary.BigEndian, h.OutputIndex)
		binary.Write(w, binary.BigEndian, int64(h.Amount))
		binary.Write(w, binary.BigEndian, uint16(len(h.Script)))
		w.Write(h.Script)
		if h.Offered {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	}
	return nil
}

func decodeRetribution(r *bytes.Reader) (*Retribution, error) {
	ret := &Retribution{}

	if _, err := r.Read(ret.ChanPoint.Hash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &ret.ChanPoint.Index); err != nil {
		return nil, err
	}
	if _, err := r.Read(ret.BreachTxid[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &ret.CommitHeight); err != nil {
		return nil, err
	}

	var privBuf [32]byte
	if _, err := r.Read(privBuf[:]); err != nil {
		return nil, err
	}
	ret.RevocationPrivKey = privKeyFromBytes(privBuf)

	if _, err := r.Read(privBuf[:]); err != nil {
		return nil, err
	}
	ret.LocalDelayPrivKey = privKeyFromBytes(privBuf)

	if err := binary.Read(r, binary.BigEndian, &ret.CsvTimeout); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &ret.LocalOutputIndex); err != nil {
		return nil, err
	}
	var amt int64
	if err := binary.Read(r, binary.BigEndian, &amt); err != nil {
		return nil, err
	}
	ret.LocalOutputAmount = btcutil.Amount(amt)

	var numHTLCs uint32
	if err := binary.Read(r, binary.BigEndian, &numHTLCs); err != nil {
		return nil, err
	}
	ret.HTLCs = make([]HTLCRetribution, numHTLCs)
	for i := range ret.HTLCs {
		if err := binary.Read(r, binary.BigEndian, &ret.HTLCs[i].OutputIndex); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &amt); err != nil {
			return nil, err
		}
		ret.HTLCs[i].Amount = btcutil.Amount(amt)

		var scriptLen uint16
		if err := binary.Read(r, binary.BigEndian, &scriptLen); err != nil {
			return nil, err
		}
		ret.HTLCs[i].Script = make([]byte, scriptLen)
		if _, err := r.Read(ret.HTLCs[i].Script); err != nil {
			return nil, err
		}

		offered, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		ret.HTLCs[i].Offered = offered == 1
	}

	return ret, nil
}

func privKeyFromBytes(b [32]byte) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(b[:])
	return priv
}
