package store_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/listing-watcher/internal/store"
	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

func item(id, sale string) domain.Item {
	it := domain.Item{ID: id, Title: "item " + id}
	if sale != "" {
		it.SalePrice = &domain.Price{Amount: decimal.RequireFromString(sale), Currency: "USD"}
	}
	return it
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    store.Mode
		wantErr bool
	}{
		{name: "empty defaults to records", in: "", want: store.ModeRecords},
		{name: "records", in: "records", want: store.ModeRecords},
		{name: "ids", in: "ids", want: store.ModeIDs},
		{name: "unknown", in: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := store.ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_SelectsVariant(t *testing.T) {
	t.Parallel()

	assert.Equal(t, store.ModeRecords, store.New(store.ModeRecords).Mode())
	assert.Equal(t, store.ModeIDs, store.New(store.ModeIDs).Mode())
	assert.Equal(t, store.ModeRecords, store.New("").Mode())
}

func TestRecordStore_PutLookup(t *testing.T) {
	t.Parallel()

	s := store.NewRecordStore()
	_, ok := s.Lookup("1")
	assert.False(t, ok)

	s.Put(item("1", "100"), 1)
	prev, ok := s.Lookup("1")
	require.True(t, ok)
	require.NotNil(t, prev)
	assert.Equal(t, "100", prev.SalePrice.Amount.String())

	s.Put(item("1", "90"), 2)
	prev, ok = s.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "90", prev.SalePrice.Amount.String())
	assert.Equal(t, 1, s.Len())
}

func TestRecordStore_LookupReturnsCopy(t *testing.T) {
	t.Parallel()

	s := store.NewRecordStore()
	s.Put(item("1", "100"), 1)

	prev, _ := s.Lookup("1")
	prev.Title = "mutated"

	again, _ := s.Lookup("1")
	assert.Equal(t, "item 1", again.Title)
}

func TestIDStore_LookupHasNoPrevious(t *testing.T) {
	t.Parallel()

	s := store.NewIDStore()
	s.Put(item("1", "100"), 1)

	prev, ok := s.Lookup("1")
	assert.True(t, ok)
	assert.Nil(t, prev)

	recs := s.Records()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Item)
	assert.Equal(t, uint64(1), recs[0].LastSeen)
}

func TestEvictOlderThan(t *testing.T) {
	t.Parallel()

	for _, mode := range []store.Mode{store.ModeRecords, store.ModeIDs} {
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			s := store.New(mode)
			s.Put(item("a", "1"), 1)
			s.Put(item("b", "1"), 3)
			s.Put(item("c", "1"), 5)

			assert.Equal(t, 2, s.EvictOlderThan(4))
			assert.Equal(t, 1, s.Len())
			_, ok := s.Lookup("c")
			assert.True(t, ok)
			assert.Zero(t, s.EvictOlderThan(4))
		})
	}
}

func TestRecords_SortedByID(t *testing.T) {
	t.Parallel()

	s := store.NewRecordStore()
	for _, id := range []string{"c", "a", "b"} {
		s.Put(item(id, "1"), 1)
	}

	recs := s.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "b", recs[1].ID)
	assert.Equal(t, "c", recs[2].ID)
}

func TestRestore(t *testing.T) {
	t.Parallel()

	full := item("1", "100")
	records := []store.Record{
		{ID: "1", Item: &full},
		{ID: "2"},
		{ID: ""},
	}

	t.Run("records skips entries without an item", func(t *testing.T) {
		t.Parallel()
		s := store.NewRecordStore()
		s.Put(item("old", "1"), 9)
		s.Restore(records)
		assert.Equal(t, 1, s.Len())
		_, ok := s.Lookup("old")
		assert.False(t, ok)
		assert.Zero(t, s.Records()[0].LastSeen)
	})

	t.Run("ids keeps every non-empty id", func(t *testing.T) {
		t.Parallel()
		s := store.NewIDStore()
		s.Restore(records)
		assert.Equal(t, 2, s.Len())
	})
}
