package sale

import (
	"encoding/binary"
	"fmt"
)

// Key layout. Sales are numbered sequentially; per-account records hang
// off the sale id so they can be enumerated without loading the whole
// aggregate.
var (
	saleRecordPrefix    = []byte("sale/record/")
	saleAccountPrefix   = []byte("sale/acct/")
	affiliatePrefix     = []byte("sale/affil/")
	saleAccountIndexKey = []byte("sale/acctidx/")
	numSalesKey         = []byte("sale/num")
	referralFeesKey     = []byte("sale/referral_fees")
)

// engineState describes the persistence functionality the sale engine
// needs from the surrounding state implementation.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out *[][]byte) error
}

func saleKey(id uint64) []byte {
	buf := make([]byte, len(saleRecordPrefix)+8)
	copy(buf, saleRecordPrefix)
	binary.BigEndian.PutUint64(buf[len(saleRecordPrefix):], id)
	return buf
}

func scopedAccountKey(prefix []byte, id uint64, account string) []byte {
	buf := make([]byte, len(prefix)+8+1+len(account))
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	buf[len(prefix)+8] = '/'
	copy(buf[len(prefix)+9:], account)
	return buf
}

func accountIndexKey(id uint64) []byte {
	buf := make([]byte, len(saleAccountIndexKey)+8)
	copy(buf, saleAccountIndexKey)
	binary.BigEndian.PutUint64(buf[len(saleAccountIndexKey):], id)
	return buf
}

func (e *Engine) loadSale(id uint64) (*Sale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var envelope vSale
	ok, err := e.state.KVGet(saleKey(id), &envelope)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSaleNotFound
	}
	return decodeSale(id, &envelope)
}

func (e *Engine) storeSale(s *Sale) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	envelope, err := encodeSale(s)
	if err != nil {
		return err
	}
	return e.state.KVPut(saleKey(s.ID), envelope)
}

// NumSales returns the number of sales ever created. Ids below this count
// may still be absent if an empty sale was removed.
func (e *Engine) NumSales() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	var num uint64
	if _, err := e.state.KVGet(numSalesKey, &num); err != nil {
		return 0, err
	}
	return num, nil
}

func (e *Engine) bumpNumSales() (uint64, error) {
	num, err := e.NumSales()
	if err != nil {
		return 0, err
	}
	if err := e.state.KVPut(numSalesKey, num+1); err != nil {
		return 0, err
	}
	return num, nil
}

func (e *Engine) loadAccountRecord(prefix []byte, saleID uint64, account string) (*SaleAccount, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	var envelope vSaleAccount
	ok, err := e.state.KVGet(scopedAccountKey(prefix, saleID, account), &envelope)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	record, err := decodeSaleAccount(&envelope)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

func (e *Engine) storeAccountRecord(prefix []byte, saleID uint64, account string, record *SaleAccount) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	envelope, err := encodeSaleAccount(record)
	if err != nil {
		return err
	}
	return e.state.KVPut(scopedAccountKey(prefix, saleID, account), envelope)
}

func (e *Engine) appendAccountIndex(saleID uint64, account string) error {
	return e.state.KVAppend(accountIndexKey(saleID), []byte(account))
}

func (e *Engine) accountIndex(saleID uint64) ([]string, error) {
	var raw [][]byte
	if err := e.state.KVGetList(accountIndexKey(saleID), &raw); err != nil {
		return nil, err
	}
	accounts := make([]string, 0, len(raw))
	for _, entry := range raw {
		if len(entry) == 0 {
			continue
		}
		accounts = append(accounts, string(entry))
	}
	return accounts, nil
}

// ReferralFees returns the persisted fee schedule, falling back to the
// engine default when none has been stored yet.
func (e *Engine) ReferralFees() ([Levels]uint64, error) {
	if e == nil || e.state == nil {
		return [Levels]uint64{}, errNilState
	}
	var stored []uint64
	ok, err := e.state.KVGet(referralFeesKey, &stored)
	if err != nil {
		return [Levels]uint64{}, err
	}
	if !ok {
		return e.defaultFees, nil
	}
	if len(stored) != Levels {
		return [Levels]uint64{}, fmt.Errorf("sale: corrupt fee schedule of length %d", len(stored))
	}
	var fees [Levels]uint64
	copy(fees[:], stored)
	return fees, nil
}

func (e *Engine) storeReferralFees(fees [Levels]uint64) error {
	return e.state.KVPut(referralFeesKey, fees[:])
}
