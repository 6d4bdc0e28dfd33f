package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/noah-isme/course-cms-api/internal/models"
	"github.com/noah-isme/course-cms-api/internal/ordering"
	appErrors "github.com/noah-isme/course-cms-api/pkg/errors"
)

type memSubjectRepo struct {
	rows map[string]*models.Subject
	seq  int
}

func newMemSubjectRepo(subjects ...models.Subject) *memSubjectRepo {
	r := &memSubjectRepo{rows: map[string]*models.Subject{}}
	for i := range subjects {
		s := subjects[i]
		r.rows[s.ID] = &s
	}
	return r
}

func (r *memSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	out := make([]models.Subject, 0, len(r.rows))
	for _, s := range r.rows {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, len(out), nil
}

func (r *memSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	s, ok := r.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (r *memSubjectRepo) FindBySlug(ctx context.Context, slug string) (*models.Subject, error) {
	for _, s := range r.rows {
		if s.Slug == slug {
			cp := *s
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memSubjectRepo) ExistsBySlug(ctx context.Context, slug string, excludeID string) (bool, error) {
	for _, s := range r.rows {
		if s.Slug == slug && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	r.seq++
	subject.ID = fmt.Sprintf("subject-%d", r.seq)
	cp := *subject
	r.rows[subject.ID] = &cp
	return nil
}

func (r *memSubjectRepo) Update(ctx context.Context, subject *models.Subject) error {
	cp := *subject
	r.rows[subject.ID] = &cp
	return nil
}

func (r *memSubjectRepo) Delete(ctx context.Context, id string) error {
	delete(r.rows, id)
	return nil
}

type memCourseRepo struct {
	rows map[string]*models.Course
	seq  int
}

func newMemCourseRepo(courses ...models.Course) *memCourseRepo {
	r := &memCourseRepo{rows: map[string]*models.Course{}}
	for i := range courses {
		c := courses[i]
		r.rows[c.ID] = &c
	}
	return r
}

func (r *memCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	out := make([]models.Course, 0, len(r.rows))
	for _, c := range r.rows {
		if filter.OwnerID != "" && c.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (r *memCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := r.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (r *memCourseRepo) FindBySlug(ctx context.Context, slug string) (*models.Course, error) {
	for _, c := range r.rows {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memCourseRepo) ExistsBySlug(ctx context.Context, slug string, excludeID string) (bool, error) {
	for _, c := range r.rows {
		if c.Slug == slug && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memCourseRepo) Create(ctx context.Context, course *models.Course) error {
	r.seq++
	course.ID = fmt.Sprintf("course-%d", r.seq)
	course.CreatedAt = time.Date(2024, 1, 1, 0, 0, r.seq, 0, time.UTC)
	cp := *course
	r.rows[course.ID] = &cp
	return nil
}

func (r *memCourseRepo) Update(ctx context.Context, course *models.Course) error {
	cp := *course
	cp.CreatedAt = r.rows[course.ID].CreatedAt
	r.rows[course.ID] = &cp
	return nil
}

func (r *memCourseRepo) Delete(ctx context.Context, id string) error {
	delete(r.rows, id)
	return nil
}

// memOrderedRows is a MaxFinder over rows keyed by their scope column values.
type memOrderedRows struct {
	scopes map[string]map[string]string
	orders map[string]int
}

func (m *memOrderedRows) MaxOrder(ctx context.Context, table, column string, filters []ordering.ScopeField) (int, bool, error) {
	highest, found := 0, false
	for id, scope := range m.scopes {
		match := true
		for _, f := range filters {
			if scope[f.Column] != f.Value {
				match = false
				break
			}
		}
		if match && (!found || m.orders[id] > highest) {
			highest, found = m.orders[id], true
		}
	}
	return highest, found, nil
}

func (m *memOrderedRows) put(id string, scope map[string]string, order int) {
	if m.scopes == nil {
		m.scopes = map[string]map[string]string{}
		m.orders = map[string]int{}
	}
	m.scopes[id] = scope
	m.orders[id] = order
}

func (m *memOrderedRows) remove(id string) {
	delete(m.scopes, id)
	delete(m.orders, id)
}

type memModuleRepo struct {
	rows   map[string]*models.Module
	index  memOrderedRows
	orders *ordering.Assigner
	seq    int
}

func newMemModuleRepo(opts ...ordering.Option) *memModuleRepo {
	return &memModuleRepo{rows: map[string]*models.Module{}, orders: ordering.MustNew("modules", "order", []string{"course_id"}, opts...)}
}

func (r *memModuleRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	out := make([]models.Module, 0)
	for _, m := range r.rows {
		if m.CourseID == courseID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memModuleRepo) FindByID(ctx context.Context, id string) (*models.Module, error) {
	m, ok := r.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *m
	return &cp, nil
}

func (r *memModuleRepo) Create(ctx context.Context, module *models.Module, explicitOrder *int) error {
	order, err := r.orders.Assign(ctx, &r.index, explicitOrder, module)
	if err != nil {
		return err
	}
	r.seq++
	module.ID = fmt.Sprintf("module-%02d", r.seq)
	module.Order = order
	cp := *module
	r.rows[module.ID] = &cp
	r.index.put(module.ID, map[string]string{"course_id": module.CourseID}, order)
	return nil
}

func (r *memModuleRepo) Update(ctx context.Context, module *models.Module) error {
	cp := *module
	r.rows[module.ID] = &cp
	r.index.put(module.ID, map[string]string{"course_id": module.CourseID}, module.Order)
	return nil
}

func (r *memModuleRepo) Delete(ctx context.Context, id string) error {
	delete(r.rows, id)
	r.index.remove(id)
	return nil
}

type memContentRepo struct {
	rows   map[string]*models.Content
	index  memOrderedRows
	orders *ordering.Assigner
	seq    int
}

func newMemContentRepo() *memContentRepo {
	return &memContentRepo{rows: map[string]*models.Content{}, orders: ordering.MustNew("contents", "order", []string{"module_id"})}
}

func (r *memContentRepo) ListByModule(ctx context.Context, moduleID string) ([]models.Content, error) {
	out := make([]models.Content, 0)
	for _, c := range r.rows {
		if c.ModuleID == moduleID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memContentRepo) ListByModules(ctx context.Context, moduleIDs []string) (map[string][]models.Content, error) {
	grouped := make(map[string][]models.Content, len(moduleIDs))
	for _, id := range moduleIDs {
		contents, _ := r.ListByModule(ctx, id)
		if len(contents) > 0 {
			grouped[id] = contents
		}
	}
	return grouped, nil
}

func (r *memContentRepo) FindByID(ctx context.Context, id string) (*models.Content, error) {
	c, ok := r.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (r *memContentRepo) Create(ctx context.Context, content *models.Content, explicitOrder *int) error {
	order, err := r.orders.Assign(ctx, &r.index, explicitOrder, content)
	if err != nil {
		return err
	}
	r.seq++
	content.ID = fmt.Sprintf("content-%02d", r.seq)
	content.Order = order
	cp := *content
	cp.Item = nil
	r.rows[content.ID] = &cp
	r.index.put(content.ID, map[string]string{"module_id": content.ModuleID}, order)
	return nil
}

func (r *memContentRepo) UpdateOrder(ctx context.Context, id string, order int) error {
	c, ok := r.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Order = order
	r.index.orders[id] = order
	return nil
}

func (r *memContentRepo) Delete(ctx context.Context, id string) error {
	delete(r.rows, id)
	r.index.remove(id)
	return nil
}

func (r *memContentRepo) DeleteByItem(ctx context.Context, ref models.ItemRef) (int64, error) {
	var removed int64
	for id, c := range r.rows {
		if c.Ref() == ref {
			delete(r.rows, id)
			r.index.remove(id)
			removed++
		}
	}
	return removed, nil
}

type memItemRepo struct {
	rows      map[models.ItemRef]models.Item
	seq       int
	findMany  int
	createErr error
}

func newMemItemRepo() *memItemRepo {
	return &memItemRepo{rows: map[models.ItemRef]models.Item{}}
}

func (r *memItemRepo) Create(ctx context.Context, item models.Item) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.seq++
	base := item.Base()
	base.ID = fmt.Sprintf("%s-%d", item.Kind(), r.seq)
	base.CreatedAt = time.Date(2024, 1, 1, 0, 0, r.seq, 0, time.UTC)
	base.UpdatedAt = base.CreatedAt
	r.rows[models.RefOf(item)] = item
	return nil
}

func (r *memItemRepo) Find(ctx context.Context, ref models.ItemRef) (models.Item, error) {
	item, ok := r.rows[ref]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return item, nil
}

func (r *memItemRepo) FindMany(ctx context.Context, kind models.ItemKind, ids []string) (map[string]models.Item, error) {
	r.findMany++
	found := map[string]models.Item{}
	for _, id := range ids {
		if item, ok := r.rows[models.ItemRef{Kind: kind, ID: id}]; ok {
			found[id] = item
		}
	}
	return found, nil
}

func (r *memItemRepo) ListByOwner(ctx context.Context, kind models.ItemKind, ownerID string) ([]models.Item, error) {
	out := make([]models.Item, 0)
	for ref, item := range r.rows {
		if ref.Kind == kind && item.Base().OwnerID == ownerID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base().CreatedAt.After(out[j].Base().CreatedAt) })
	return out, nil
}

func (r *memItemRepo) Update(ctx context.Context, item models.Item) error {
	item.Base().UpdatedAt = item.Base().UpdatedAt.Add(time.Minute)
	r.rows[models.RefOf(item)] = item
	return nil
}

func (r *memItemRepo) Delete(ctx context.Context, ref models.ItemRef) error {
	delete(r.rows, ref)
	return nil
}

type memCacheRepo struct {
	store   map[string][]byte
	deleted []string
}

func (c *memCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := c.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (c *memCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = payload
	return nil
}

func (c *memCacheRepo) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.deleted = append(c.deleted, key)
		delete(c.store, key)
	}
	return nil
}

func (c *memCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	c.deleted = append(c.deleted, pattern)
	for key := range c.store {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.store, key)
		}
	}
	return nil
}

type memBlobStore struct {
	blobs map[string][]byte
	dir   string
}

func (b *memBlobStore) SaveStream(name string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	if b.blobs == nil {
		b.blobs = map[string][]byte{}
	}
	b.blobs[name] = data
	return name, int64(len(data)), nil
}

func (b *memBlobStore) Open(name string) (*os.File, error) {
	data, ok := b.blobs[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	f, err := os.CreateTemp(b.dir, "blob-*")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func (b *memBlobStore) Delete(name string) error {
	delete(b.blobs, name)
	return nil
}

func intPtr(v int) *int { return &v }
