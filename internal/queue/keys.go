package queue

// Queue keys shared by producers and consumers. These are wire-level
// constants; changing one orphans every item already in Redis.
const (
	KeyRefundQueue     = "campaign:refund:queue"
	KeyRefundProcessed = "campaign:refund:processed"
	KeyEmailQueue      = "email:queue"
	KeyEmailRetryQueue = "email:retry:queue"

	KeyScanLock = "campaign:scan:lock"
)
