package persist

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/querykit/pkg/db"
	"github.com/ammar0144/querykit/pkg/db/dbtest"
	"github.com/ammar0144/querykit/pkg/query"
)

type person struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string `db:"email_address"`
	Password  string `db:"-"`
	note      string
	Timestamps
}

var people = query.NewTable[person]("people", "p")

var (
	insertPerson = "INSERT INTO people (first_name, last_name, email_address, created_at, updated_at) " +
		"VALUES (:FirstName, :LastName, :Email, :CreatedAt, :UpdatedAt)"
	updatePerson = "UPDATE people SET first_name = :FirstName, last_name = :LastName, email_address = :Email, " +
		"created_at = :CreatedAt, updated_at = :UpdatedAt WHERE id = :ID"
)

func fixedClock(times ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func TestInsertThenUpdate(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	rec := dbtest.NewRecorder()
	s := NewSaver(rec, WithClock(fixedClock(created, updated)))
	ctx := context.Background()

	p := &person{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "x"}

	got, err := Save(ctx, s, p, people)
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.Equal(t, int64(1), p.ID)
	require.NotNil(t, p.CreatedAt)
	assert.Equal(t, created, *p.CreatedAt)
	assert.Nil(t, p.UpdatedAt)

	insert := rec.Last()
	require.NotNil(t, insert)
	assert.Equal(t, insertPerson, insert.SQL)
	assert.True(t, insert.WantKey)
	assert.Equal(t, "Ada", insert.Params["FirstName"])
	assert.Equal(t, "ada@example.com", insert.Params["Email"])
	assert.NotContains(t, insert.Params, "ID")
	assert.NotContains(t, insert.Params, "Password")

	p.LastName = "King"
	_, err = Save(ctx, s, p, people)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, created, *p.CreatedAt)
	require.NotNil(t, p.UpdatedAt)
	assert.Equal(t, updated, *p.UpdatedAt)

	update := rec.Last()
	require.NotNil(t, update)
	assert.Equal(t, updatePerson, update.SQL)
	assert.False(t, update.WantKey)
	assert.Equal(t, int64(1), update.Params["ID"])
	assert.Equal(t, "King", update.Params["LastName"])
	assert.Equal(t, 2, rec.Count())
}

func TestInsertKeepsExistingCreatedTime(t *testing.T) {
	earlier := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSaver(dbtest.NewRecorder())

	p := &person{FirstName: "Grace"}
	p.SetCreatedTime(earlier)

	_, err := Save(context.Background(), s, p, people)
	require.NoError(t, err)
	assert.Equal(t, earlier, *p.CreatedAt)
}

func TestInsertStampIsNotBeforeCall(t *testing.T) {
	s := NewSaver(dbtest.NewRecorder())
	start := time.Now()

	p := &person{FirstName: "Linus"}
	_, err := Save(context.Background(), s, p, people)
	require.NoError(t, err)
	require.NotNil(t, p.CreatedAt)
	assert.False(t, p.CreatedAt.Before(start))
}

func TestUpdateAlwaysStamps(t *testing.T) {
	stale := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := NewSaver(dbtest.NewRecorder(), WithClock(fixedClock(now)))

	p := &person{ID: 7, FirstName: "Ken"}
	p.SetUpdatedTime(stale)

	_, err := Save(context.Background(), s, p, people)
	require.NoError(t, err)
	assert.Equal(t, now, *p.UpdatedAt)
	assert.Nil(t, p.CreatedAt)
}

type plain struct {
	ID   int64
	Name string
}

func TestEntityWithoutStampersIsNotStamped(t *testing.T) {
	rec := dbtest.NewRecorder()
	s := NewSaver(rec)
	table := query.NewTable[plain]("plains", "pl")

	e := &plain{Name: "a"}
	require.NoError(t, s.Save(context.Background(), e, table))
	assert.Equal(t, "INSERT INTO plains (name) VALUES (:Name)", rec.Last().SQL)
	assert.Equal(t, map[string]any{"Name": "a"}, rec.Last().Params)
}

type ptrID struct {
	ID   *int64
	Name string
}

type nullID struct {
	ID   sql.NullInt64
	Name string
}

type uintID struct {
	ID   uint32
	Name string
}

func TestIdentifierKinds(t *testing.T) {
	ctx := context.Background()

	t.Run("pointer", func(t *testing.T) {
		rec := dbtest.NewRecorder()
		s := NewSaver(rec)
		table := query.NewTable[ptrID]("things", "t")

		e := &ptrID{Name: "a"}
		_, err := Save(ctx, s, e, table)
		require.NoError(t, err)
		require.NotNil(t, e.ID)
		assert.Equal(t, int64(1), *e.ID)

		_, err = Save(ctx, s, e, table)
		require.NoError(t, err)
		assert.Equal(t, "UPDATE things SET name = :Name WHERE id = :ID", rec.Last().SQL)
	})

	t.Run("null int", func(t *testing.T) {
		rec := dbtest.NewRecorder()
		s := NewSaver(rec)
		table := query.NewTable[nullID]("things", "t")

		e := &nullID{Name: "a"}
		_, err := Save(ctx, s, e, table)
		require.NoError(t, err)
		assert.Equal(t, sql.NullInt64{Int64: 1, Valid: true}, e.ID)

		_, err = Save(ctx, s, e, table)
		require.NoError(t, err)
		assert.Equal(t, dbtest.KindExec, rec.Last().Kind)
		assert.False(t, rec.Last().WantKey)
	})

	t.Run("unsigned", func(t *testing.T) {
		rec := dbtest.NewRecorder()
		rec.LastKey = 41
		s := NewSaver(rec)
		table := query.NewTable[uintID]("things", "t")

		e := &uintID{Name: "a"}
		_, err := Save(ctx, s, e, table)
		require.NoError(t, err)
		assert.Equal(t, uint32(42), e.ID)
	})
}

func TestInsertWithoutGeneratedKey(t *testing.T) {
	rec := dbtest.NewRecorder()
	rec.NoKeys = true
	s := NewSaver(rec)

	p := &person{FirstName: "Ada"}
	_, err := Save(context.Background(), s, p, people)
	require.NoError(t, err)
	assert.Zero(t, p.ID)
}

type noID struct {
	Name string
}

type twoIDs struct {
	ID  int64
	Key int64 `db:"id"`
}

type stringID struct {
	ID   string
	Name string
}

func TestMappingConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		entity any
		want   error
	}{
		{"no identifier", &noID{Name: "a"}, ErrNoIdentifier},
		{"two identifiers", &twoIDs{}, ErrAmbiguousIdentifier},
		{"string identifier", &stringID{ID: "a"}, ErrUnsupportedIdentifier},
		{"not a pointer", person{}, ErrUnsupportedEntity},
		{"nil pointer", (*person)(nil), ErrUnsupportedEntity},
		{"not a struct", new(int), ErrUnsupportedEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := dbtest.NewRecorder()
			s := NewSaver(rec)

			for i := 0; i < 2; i++ {
				err := s.Save(context.Background(), tt.entity, people)
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.want)
				assert.True(t, IsConfiguration(err))

				var se *SaveError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, OpMapping, se.Op)
				assert.Equal(t, "people", se.Table)
			}
			assert.Zero(t, rec.Count())
		})
	}
}

func TestGenericSaveNil(t *testing.T) {
	s := NewSaver(dbtest.NewRecorder())

	got, err := Save[person](context.Background(), s, nil, people)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrUnsupportedEntity)
}

func TestNoExecutor(t *testing.T) {
	s := NewSaver(nil)

	err := s.Save(context.Background(), &person{}, people)
	assert.ErrorIs(t, err, db.ErrNoExecutor)
}

func TestExecutionErrorIsWrapped(t *testing.T) {
	boom := errors.New("lost connection")
	rec := dbtest.NewRecorder()
	rec.Fail = func(dbtest.Statement) error { return boom }
	s := NewSaver(rec)

	p := &person{FirstName: "Ada"}
	_, err := Save(context.Background(), s, p, people)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsSaveError(err))
	assert.False(t, IsConfiguration(err))
	assert.Zero(t, p.ID)

	var se *SaveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpInsert, se.Op)
	assert.Equal(t, "persist: insert people: lost connection", err.Error())

	p.ID = 3
	_, err = Save(context.Background(), s, p, people)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpUpdate, se.Op)
}

func TestDuplicateKey(t *testing.T) {
	rec := dbtest.NewRecorder()
	rec.Fail = func(dbtest.Statement) error {
		return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ada' for key 'username'"}
	}
	s := NewSaver(rec)

	_, err := Save(context.Background(), s, &person{FirstName: "Ada"}, people)
	assert.True(t, IsDuplicate(err))
	assert.False(t, IsDuplicate(errors.New("other")))
}

func TestSaveAll(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		rec := dbtest.NewRecorder()
		got, err := SaveAll[person](ctx, NewSaver(rec), nil, people)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
		assert.Zero(t, rec.Count())
	})

	t.Run("keeps order", func(t *testing.T) {
		rec := dbtest.NewRecorder()
		batch := []*person{{FirstName: "a"}, {ID: 9, FirstName: "b"}, {FirstName: "c"}}

		got, err := SaveAll(ctx, NewSaver(rec), batch, people)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, int64(1), got[0].ID)
		assert.Equal(t, int64(9), got[1].ID)
		assert.Equal(t, int64(2), got[2].ID)

		stmts := rec.Statements()
		require.Len(t, stmts, 3)
		assert.Equal(t, insertPerson, stmts[0].SQL)
		assert.Equal(t, updatePerson, stmts[1].SQL)
		assert.Equal(t, insertPerson, stmts[2].SQL)
	})

	t.Run("stops at first failure", func(t *testing.T) {
		boom := errors.New("boom")
		rec := dbtest.NewRecorder()
		rec.Fail = func(s dbtest.Statement) error {
			if s.Params["FirstName"] == "b" {
				return boom
			}
			return nil
		}
		batch := []*person{{FirstName: "a"}, {FirstName: "b"}, {FirstName: "c"}}

		got, err := SaveAll(ctx, NewSaver(rec), batch, people)
		assert.ErrorIs(t, err, boom)
		require.Len(t, got, 1)
		assert.Same(t, batch[0], got[0])
		assert.Equal(t, 1, rec.Count())
	})
}

type account struct {
	Code     int64 `db:"code"`
	Owner    string
	Nickname string
	Cache    string
}

func TestRegisterOverrides(t *testing.T) {
	rec := dbtest.NewRecorder()
	s := NewSaver(rec)
	table := query.NewTable[account]("accounts", "a")

	m, err := s.Register(table,
		WithIdentifier("Code"),
		WithColumn("Nickname", "alias"),
		WithoutField("Cache"))
	require.NoError(t, err)
	assert.Equal(t, "code", m.ID.Column)
	assert.Equal(t, []string{"owner", "alias"}, m.Columns())

	again, err := s.Mapping(reflect.TypeOf(account{}))
	require.NoError(t, err)
	assert.Same(t, m, again)

	a := &account{Owner: "ops", Nickname: "o", Cache: "skip"}
	require.NoError(t, s.Save(context.Background(), a, table))
	assert.Equal(t, int64(1), a.Code)
	assert.Equal(t, "INSERT INTO accounts (owner, alias) VALUES (:Owner, :Nickname)", rec.Last().SQL)

	require.NoError(t, s.Save(context.Background(), a, table))
	assert.Equal(t, "UPDATE accounts SET owner = :Owner, alias = :Nickname WHERE code = :Code", rec.Last().SQL)

	_, err = s.Register(table)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.True(t, IsConfiguration(err))
}

type onlyID struct {
	ID int64
}

func TestUpdateWithoutColumns(t *testing.T) {
	rec := dbtest.NewRecorder()
	s := NewSaver(rec)

	err := s.Save(context.Background(), &onlyID{ID: 5}, query.NewTable[onlyID]("markers", "m"))
	assert.ErrorIs(t, err, ErrNoColumns)
	assert.True(t, IsConfiguration(err))

	var se *SaveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpUpdate, se.Op)
	assert.Zero(t, rec.Count())
}

func TestRegisterUnknownField(t *testing.T) {
	s := NewSaver(dbtest.NewRecorder())

	_, err := s.Register(people, WithColumn("Nope", "nope"))
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = s.Register(query.NewTable[account]("accounts", "a"), WithIdentifier("Missing"))
	assert.ErrorIs(t, err, ErrUnknownField)
}

type base struct {
	ID   int64
	Name string
}

type derived struct {
	base
	Name  string `db:"display_name"`
	Notes string
}

func TestEmbeddedFieldsAreFlattened(t *testing.T) {
	rec := dbtest.NewRecorder()
	s := NewSaver(rec)

	m, err := s.Mapping(reflect.TypeOf(derived{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"display_name", "notes"}, m.Columns())
	assert.Equal(t, []int{0, 0}, m.ID.Index)

	d := &derived{Name: "shown", Notes: "n"}
	require.NoError(t, s.Save(context.Background(), d, query.NewTable[derived]("things", "t")))
	assert.Equal(t, int64(1), d.ID)
	assert.Equal(t, "shown", rec.Last().Params["Name"])
}

type Ref struct {
	ID int64
}

type note struct {
	*Ref
	Body string
	*Timestamps
}

type hidden struct {
	ID   int64
	Body string
	*ref
}

type ref struct {
	Owner string
}

func TestPointerEmbedsAreFlattened(t *testing.T) {
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	updated := created.Add(time.Minute)
	rec := dbtest.NewRecorder()
	s := NewSaver(rec, WithClock(fixedClock(created, updated)))
	table := query.NewTable[note]("notes", "n")
	ctx := context.Background()

	m, err := s.Mapping(reflect.TypeOf(note{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "created_at", "updated_at"}, m.Columns())
	assert.Equal(t, []int{0, 0}, m.ID.Index)

	n := &note{Body: "first"}
	_, err = Save(ctx, s, n, table)
	require.NoError(t, err)
	require.NotNil(t, n.Ref)
	require.NotNil(t, n.Timestamps)
	assert.Equal(t, int64(1), n.ID)
	assert.Equal(t, created, n.CreatedTime())
	assert.Equal(t,
		"INSERT INTO notes (body, created_at, updated_at) VALUES (:Body, :CreatedAt, :UpdatedAt)",
		rec.Last().SQL)
	assert.Equal(t, &created, rec.Last().Params["CreatedAt"])

	n.Timestamps = nil
	_, err = Save(ctx, s, n, table)
	require.NoError(t, err)
	assert.Equal(t,
		"UPDATE notes SET body = :Body, created_at = :CreatedAt, updated_at = :UpdatedAt WHERE id = :ID",
		rec.Last().SQL)
	require.NotNil(t, n.UpdatedAt)
	assert.Equal(t, updated, *n.UpdatedAt)
	assert.Nil(t, rec.Last().Params["CreatedAt"])
}

func TestUnexportedPointerEmbedIsSkipped(t *testing.T) {
	s := NewSaver(dbtest.NewRecorder())

	m, err := s.Mapping(reflect.TypeOf(hidden{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"body"}, m.Columns())

	h := &hidden{Body: "b"}
	require.NoError(t, s.Save(context.Background(), h, query.NewTable[hidden]("hidden", "h")))
	assert.Nil(t, h.ref)
}

func TestNilTimestampsReportZeroCreation(t *testing.T) {
	var ts *Timestamps
	assert.True(t, ts.CreatedTime().IsZero())
}

func TestMappingIsBuiltOncePerType(t *testing.T) {
	rec := dbtest.NewRecorder()
	s := NewSaver(rec)

	const workers = 50
	var wg sync.WaitGroup
	mappings := make([]*Mapping, workers)
	entities := make([]*person, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entities[i] = &person{FirstName: "p"}
			_, err := Save(context.Background(), s, entities[i], people)
			assert.NoError(t, err)
			mappings[i], _ = s.Mapping(reflect.TypeOf(person{}))
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, workers)
	for i := 0; i < workers; i++ {
		assert.Same(t, mappings[0], mappings[i])
		assert.False(t, seen[entities[i].ID], "duplicate key %d", entities[i].ID)
		seen[entities[i].ID] = true
	}
	assert.Equal(t, workers, rec.Count())
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"ID":           "id",
		"Name":         "name",
		"FirstName":    "first_name",
		"UserID":       "user_id",
		"HTTPStatus":   "http_status",
		"CreatedAt":    "created_at",
		"Address2Line": "address2_line",
		"already":      "already",
	}
	for in, want := range tests {
		assert.Equal(t, want, toSnakeCase(in), in)
	}
}
