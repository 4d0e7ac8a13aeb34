package queue

import "go.uber.org/fx"

var Module = fx.Module("queue",
	fx.Provide(
		NewRedisClient,
		NewRedisQueue,
		NewRedisLedger,
		NewLocker,
		func(q *RedisQueue) Queue { return q },
		func(l *RedisLedger) Ledger { return l },
	),
)
