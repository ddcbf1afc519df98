package adapters

// argSet accumulates the launch/attach argument map each Adapter sends as
// DAP's opaque request Arguments. Every adapter's config struct has a long
// tail of optional fields that should only appear in the map when set;
// argSet.setIf collapses the repeated "if non-zero { args[key] = val }"
// pattern that shows up once per optional field per request type.
type argSet map[string]interface{}

func (a argSet) setIf(key string, present bool, value interface{}) {
	if present {
		a[key] = value
	}
}

func (a argSet) setNonEmpty(key, value string) {
	a.setIf(key, value != "", value)
}

func (a argSet) setNonZero(key string, value int) {
	a.setIf(key, value > 0, value)
}

func (a argSet) setNonEmptySlice(key string, value []string) {
	a.setIf(key, len(value) > 0, value)
}

func (a argSet) setNonEmptyMap(key string, value map[string]string) {
	a.setIf(key, len(value) > 0, value)
}

func (a argSet) setTrue(key string, value bool) {
	a.setIf(key, value, true)
}

// toMap returns a as a plain map[string]interface{}, the concrete type DAP
// request Arguments are expected to marshal from; callers type-assert on
// that concrete type, not on argSet.
func (a argSet) toMap() map[string]interface{} { return map[string]interface{}(a) }

// pathSubstitutions converts a from->to map into the [{from, to}, ...] list
// shape both delve and debugpy expect for substitutePath.
func pathSubstitutions(subs map[string]string) []map[string]string {
	if len(subs) == 0 {
		return nil
	}
	out := make([]map[string]string, 0, len(subs))
	for from, to := range subs {
		out = append(out, map[string]string{"from": from, "to": to})
	}
	return out
}
