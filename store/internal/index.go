package internal

type KeySet map[string]struct{}

func (k KeySet) Add(s string) {
	k[s] = struct{}{}
}

func (k KeySet) Has(s string) bool {
	_, exists := k[s]
	return exists
}
