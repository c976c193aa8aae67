package bot

import "github.com/google/uuid"

// clientOrderID tags an order with its origin so fills are attributable in
// the exchange UI and logs. Binance caps client order ids at 36 characters.
func clientOrderID(prefix string) string {
	id := prefix + "-" + uuid.NewString()
	if len(id) > 36 {
		id = id[:36]
	}
	return id
}
