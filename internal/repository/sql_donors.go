package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"dugtong/internal/domain"
	"dugtong/internal/query"
	"dugtong/internal/rowmap"
	"dugtong/internal/sqlstore"
)

const insertDonorSQL = `INSERT INTO donors (user_id, full_name, age, sex, blood_type, contact_number, municipality,
	availability_status, last_donation_date, notes, is_deleted, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`

// SQLDonorRepository donors table
type SQLDonorRepository struct {
	exec sqlstore.Executor
	now  func() time.Time
}

func NewSQLDonorRepository(exec sqlstore.Executor) *SQLDonorRepository {
	return &SQLDonorRepository{exec: exec, now: time.Now}
}

// 确保实现了接口
var _ DonorRepository = (*SQLDonorRepository)(nil)

// DonorQuery builds the list statements for f. Soft-deleted donors never match.
func DonorQuery(f DonorFilter) query.Query {
	return query.New("donors", donorColumns).
		Where("is_deleted = 0").
		Eq("blood_type", f.BloodType).
		Eq("municipality", f.Municipality).
		Eq("availability_status", f.Availability).
		Search(f.Search, "full_name", "contact_number", "municipality").
		Page(f.Page, f.PageSize).
		Build()
}

func (r *SQLDonorRepository) List(ctx context.Context, f DonorFilter) (*Page[*domain.Donor], error) {
	page, err := queryPage(ctx, r.exec, DonorQuery(f), MapDonor)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	return page, nil
}

func (r *SQLDonorRepository) Get(ctx context.Context, id string) (*domain.Donor, error) {
	donorID, ok := parseDonorID(id)
	if !ok {
		return nil, ErrNotFound
	}
	return queryOne(ctx, r.exec, MapDonor,
		`SELECT `+donorColumns+` FROM donors WHERE id = ? AND is_deleted = 0`, donorID)
}

func (r *SQLDonorRepository) Create(ctx context.Context, d *domain.Donor) (*domain.Donor, error) {
	out := *d
	out.CreatedAt = r.now().UTC()
	out.Availability = domain.ParseAvailability(string(d.Availability))
	out.IsDeleted = false

	rs, err := r.exec.Query(ctx, insertDonorSQL+` RETURNING id`, donorInsertArgs(&out)...)
	if err != nil {
		return nil, fmt.Errorf("create donor: %w", err)
	}
	if rec := rowmap.First(rs); rec != nil {
		out.ID = asString(rec["id"])
	}
	return &out, nil
}

func donorInsertArgs(d *domain.Donor) []any {
	return []any{
		d.UserID, d.FullName, d.Age, d.Sex, d.BloodType, d.ContactNumber, d.Municipality,
		d.Availability, d.LastDonationDate, d.Notes, d.CreatedAt,
	}
}

func (r *SQLDonorRepository) Update(ctx context.Context, id string, d *domain.Donor) (*domain.Donor, error) {
	donorID, ok := parseDonorID(id)
	if !ok {
		return nil, ErrNotFound
	}
	err := execAffecting(ctx, r.exec,
		`UPDATE donors SET full_name = ?, age = ?, sex = ?, blood_type = ?, contact_number = ?, municipality = ?,
			availability_status = ?, last_donation_date = ?, notes = ?
		 WHERE id = ? AND is_deleted = 0`,
		d.FullName, d.Age, d.Sex, d.BloodType, d.ContactNumber, d.Municipality,
		domain.ParseAvailability(string(d.Availability)), d.LastDonationDate, d.Notes, donorID)
	if err != nil {
		return nil, fmt.Errorf("update donor %s: %w", id, err)
	}
	return r.Get(ctx, id)
}

func (r *SQLDonorRepository) SoftDelete(ctx context.Context, id string) error {
	donorID, ok := parseDonorID(id)
	if !ok {
		return ErrNotFound
	}
	if err := execAffecting(ctx, r.exec, `UPDATE donors SET is_deleted = 1 WHERE id = ? AND is_deleted = 0`, donorID); err != nil {
		return fmt.Errorf("delete donor %s: %w", id, err)
	}
	return nil
}

func (r *SQLDonorRepository) SetAvailability(ctx context.Context, id string, a domain.Availability) error {
	donorID, ok := parseDonorID(id)
	if !ok {
		return ErrNotFound
	}
	err := execAffecting(ctx, r.exec,
		`UPDATE donors SET availability_status = ? WHERE id = ? AND is_deleted = 0`,
		domain.ParseAvailability(string(a)), donorID)
	if err != nil {
		return fmt.Errorf("set availability of donor %s: %w", id, err)
	}
	return nil
}

func (r *SQLDonorRepository) CountByBloodType(ctx context.Context) ([]domain.BloodTypeCount, error) {
	rs, err := r.exec.Query(ctx, `SELECT blood_type,
			COUNT(*) AS total,
			SUM(CASE WHEN availability_status = ? THEN 1 ELSE 0 END) AS available
		FROM donors WHERE is_deleted = 0
		GROUP BY blood_type`, domain.AvailabilityAvailable)
	if err != nil {
		return nil, fmt.Errorf("count donors by blood type: %w", err)
	}

	byType := make(map[domain.BloodType]domain.BloodTypeCount)
	for _, rec := range rowmap.Map(rs) {
		bt := domain.BloodType(asString(rec["blood_type"]))
		byType[bt] = domain.BloodTypeCount{BloodType: bt, Total: asInt(rec["total"]), Available: asInt(rec["available"])}
	}
	out := make([]domain.BloodTypeCount, 0, len(domain.BloodTypes))
	for _, bt := range domain.BloodTypes {
		c, ok := byType[bt]
		if !ok {
			c = domain.BloodTypeCount{BloodType: bt}
		}
		out = append(out, c)
	}
	return out, nil
}

// parseDonorID donor ids are integers; anything else cannot match a row.
func parseDonorID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
