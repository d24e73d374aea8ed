package kvs

type MemBackend struct {
	records map[string]Record
	last    uint64
}

func NewMemBackend() *MemBackend {
	return &MemBackend{records: make(map[string]Record)}
}

func (mb *MemBackend) Merge(rec Record) (bool, error) {
	if cur, found := mb.records[rec.Key]; found && cur.Instance >= rec.Instance {
		return false, nil
	}
	mb.records[rec.Key] = rec
	return true, nil
}

func (mb *MemBackend) Apply(rec Record) (bool, error) {
	applied, _ := mb.Merge(rec)
	mb.SetLastInstance(rec.Instance)
	return applied, nil
}

func (mb *MemBackend) Get(key string) (Record, bool, error) {
	rec, found := mb.records[key]
	return rec, found, nil
}

func (mb *MemBackend) Since(instance uint64) ([]Record, error) {
	var recs []Record
	for _, rec := range mb.records {
		if rec.Instance > instance {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (mb *MemBackend) LastInstance() uint64 {
	return mb.last
}

func (mb *MemBackend) SetLastInstance(instance uint64) error {
	if instance > mb.last {
		mb.last = instance
	}
	return nil
}

func (mb *MemBackend) Close() error {
	return nil
}
