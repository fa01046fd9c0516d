package watcher

// sigCache es la caché acotada de signatures recientes que absorbe los
// replays de reconexión. El upstream entrega at-least-once; la dedup es por
// contenido (txSignature, wallet), no por orden ni timestamp.
// Eviction FIFO: al llenarse se descarta la entrada más antigua.
type sigCache struct {
	capacity int
	set      map[sigKey]struct{}
	order    []sigKey
	head     int
}

type sigKey struct {
	sig    string
	wallet string
}

func newSigCache(capacity int) *sigCache {
	return &sigCache{
		capacity: capacity,
		set:      make(map[sigKey]struct{}, capacity),
		order:    make([]sigKey, capacity),
	}
}

// Contains devuelve true si la pareja ya pasó por la caché. No registra nada:
// una signature solo se registra con Add tras persistirse en el ledger, para
// que el replay de reconexión pueda reintentar un write fallido.
// No es thread-safe: el caller (manager) la usa bajo su lock.
func (c *sigCache) Contains(sig, wallet string) bool {
	_, ok := c.set[sigKey{sig: sig, wallet: wallet}]
	return ok
}

// Add registra la pareja, expulsando la entrada más antigua si no hay hueco.
func (c *sigCache) Add(sig, wallet string) {
	key := sigKey{sig: sig, wallet: wallet}
	if _, ok := c.set[key]; ok {
		return
	}

	if len(c.set) >= c.capacity {
		oldest := c.order[c.head]
		delete(c.set, oldest)
	}
	c.set[key] = struct{}{}
	c.order[c.head] = key
	c.head = (c.head + 1) % c.capacity
}

// Len devuelve el número de signatures cacheadas.
func (c *sigCache) Len() int {
	return len(c.set)
}
