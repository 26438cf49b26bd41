package gateway

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func chainHashFromString(s string) (*chainhash.Hash, error) {
	return chainhash.NewHashFromStr(s)
}
