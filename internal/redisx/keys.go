package redisx

const (
	// Dedup change-feed processing: dedup:{service}:{order_id}
	// Claims never expire: a SUCCESS order can be re-announced long after it was counted.
	KeyDedup = "dedup:%s:%s"
)
