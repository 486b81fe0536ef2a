package escrow

import (
	"github.com/holiman/uint256"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// PaymentDue returns floor(amount × price / LamportsPerCoin).
// The product is formed in 256 bits; a product wider than 64 bits is
// rejected even when the quotient would fit.
func PaymentDue(amount, price uint64) (uint64, error) {
	a := uint256.NewInt(amount)
	p := uint256.NewInt(price)
	product, overflow := new(uint256.Int).MulOverflow(a, p)
	if overflow || !product.IsUint64() {
		return 0, ErrPaymentOverflow
	}
	return product.Uint64() / ledger.LamportsPerCoin, nil
}
