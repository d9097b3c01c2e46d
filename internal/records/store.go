package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolPrint/internal/database"
	"schoolPrint/internal/render"
	"schoolPrint/internal/storage"
)

// ErrSchoolNotFound 表示学校不存在。
var ErrSchoolNotFound = errors.New("school not found")

// Filter 限定参与渲染的学生范围，零值表示全部学生。
type Filter struct {
	Class   string
	Section string
	IDs     []uint
	// Exam selects which exam's results are attached; empty attaches none.
	Exam string
}

// Store 从数据库读取渲染所需的记录，并在交给引擎前完成租户范围校验。
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore 创建记录仓库。
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// LoadSchool 按 ID 读取学校。
func (s *Store) LoadSchool(ctx context.Context, schoolID uint) (*database.School, error) {
	var school database.School
	err := s.db.WithContext(ctx).First(&school, schoolID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSchoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load school %d: %w", schoolID, err)
	}
	return &school, nil
}

// ListStudents 按班级、学号顺序返回学生快照。
func (s *Store) ListStudents(ctx context.Context, schoolID uint, filter Filter) ([]render.Entity, error) {
	query := s.db.WithContext(ctx).Where("school_id = ?", schoolID)
	if filter.Class != "" {
		query = query.Where("class = ?", filter.Class)
	}
	if filter.Section != "" {
		query = query.Where("section = ?", filter.Section)
	}
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.Exam != "" {
		query = query.Preload("Results", func(db *gorm.DB) *gorm.DB {
			return db.Where("exam = ?", filter.Exam).Order("id ASC")
		})
	}

	var students []database.Student
	err := query.
		Order("class ASC").
		Order("section ASC").
		Order("roll_no ASC").
		Order("id ASC").
		Find(&students).Error
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	prefix := storage.SchoolPrefix(schoolID)
	entities := make([]render.Entity, 0, len(students))
	for _, student := range students {
		entity := render.Entity{
			ID:      strconv.FormatUint(uint64(student.ID), 10),
			Name:    student.Name,
			RollNo:  student.RollNo,
			Class:   student.Class,
			Section: student.Section,
			Exam:    filter.Exam,
			Photo:   s.tenantAsset(prefix, student.PhotoKey),
		}
		for _, result := range student.Results {
			entity.Results = append(entity.Results, render.ResultRow{
				Subject:  result.Subject,
				Marks:    result.Marks,
				MaxMarks: result.MaxMarks,
				Grade:    result.Grade,
			})
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// LoadTemplate 返回学校某类文档的模板与 geometry。
// 未保存过模板时返回零值模板，渲染时全部使用默认值。
func (s *Store) LoadTemplate(ctx context.Context, schoolID uint, kind render.Kind) (render.Template, render.Geometry, error) {
	school, err := s.LoadSchool(ctx, schoolID)
	if err != nil {
		return render.Template{}, render.Geometry{}, err
	}

	doc, err := s.GetTemplateDocument(ctx, schoolID, kind)
	if err != nil {
		return render.Template{}, render.Geometry{}, err
	}

	tpl := render.Template{
		Fields:       doc.Fields,
		Title:        doc.Title,
		Instructions: doc.Instructions,
		Institution: render.Institution{
			Name:    school.Name,
			Address: school.Address,
		},
		Background: s.tenantAsset(storage.SchoolPrefix(schoolID), doc.Background),
	}
	var geom render.Geometry
	if doc.Geometry != nil {
		geom = *doc.Geometry
	}
	return tpl, geom, nil
}

// GetTemplateDocument 读取模板的可编辑表示。
func (s *Store) GetTemplateDocument(ctx context.Context, schoolID uint, kind render.Kind) (TemplateDocument, error) {
	var row database.CardTemplate
	err := s.db.WithContext(ctx).
		Where("school_id = ? AND kind = ?", schoolID, string(kind)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TemplateDocument{}, nil
	}
	if err != nil {
		return TemplateDocument{}, fmt.Errorf("load template %s: %w", kind, err)
	}
	return decodeTemplate(row)
}

// SaveTemplate 校验并写入（或覆盖）模板。
func (s *Store) SaveTemplate(ctx context.Context, schoolID uint, kind render.Kind, doc TemplateDocument) error {
	if err := doc.Validate(schoolID); err != nil {
		return err
	}
	row, err := encodeTemplate(schoolID, kind, doc)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "school_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "background", "fields", "geometry", "instructions", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save template %s: %w", kind, err)
	}
	return nil
}

// ErrStudentNotFound 表示学生不存在或不属于该学校。
var ErrStudentNotFound = errors.New("student not found")

// CreateSchool 新建学校；Slug 重复时返回已有记录。
func (s *Store) CreateSchool(ctx context.Context, name, address, slug string) (*database.School, error) {
	var school database.School
	err := s.db.WithContext(ctx).
		Where(database.School{Slug: slug}).
		Attrs(database.School{Name: name, Address: address}).
		FirstOrCreate(&school).Error
	if err != nil {
		return nil, fmt.Errorf("create school %q: %w", slug, err)
	}
	return &school, nil
}

// SetStudentPhoto 更新学生照片引用，仅限本校学生。
func (s *Store) SetStudentPhoto(ctx context.Context, schoolID, studentID uint, photoKey string) error {
	result := s.db.WithContext(ctx).
		Model(&database.Student{}).
		Where("id = ? AND school_id = ?", studentID, schoolID).
		Update("photo_key", photoKey)
	if result.Error != nil {
		return fmt.Errorf("set photo for student %d: %w", studentID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStudentNotFound
	}
	return nil
}

// tenantAsset 解析资源引用；对象 key 不属于该租户时丢弃引用，引擎按缺失处理。
func (s *Store) tenantAsset(prefix, raw string) *render.AssetRef {
	ref, ok := render.ParseAssetRef(raw)
	if !ok {
		return nil
	}
	if ref.Source == render.SourceStored && !storage.ValidObjectKey(prefix, ref.Location) {
		s.logger.Warn("drop asset outside tenant prefix",
			slog.String("prefix", prefix),
			slog.String("key", ref.Location),
		)
		return nil
	}
	return &ref
}

func decodeTemplate(row database.CardTemplate) (TemplateDocument, error) {
	doc := TemplateDocument{
		Title:      row.Title,
		Background: row.Background,
	}
	if len(row.Fields) > 0 {
		if err := json.Unmarshal(row.Fields, &doc.Fields); err != nil {
			return TemplateDocument{}, fmt.Errorf("decode template fields: %w", err)
		}
	}
	if len(row.Geometry) > 0 && string(row.Geometry) != "null" {
		var geom render.Geometry
		if err := json.Unmarshal(row.Geometry, &geom); err != nil {
			return TemplateDocument{}, fmt.Errorf("decode template geometry: %w", err)
		}
		doc.Geometry = &geom
	}
	if len(row.Instructions) > 0 {
		if err := json.Unmarshal(row.Instructions, &doc.Instructions); err != nil {
			return TemplateDocument{}, fmt.Errorf("decode template instructions: %w", err)
		}
	}
	return doc, nil
}

func encodeTemplate(schoolID uint, kind render.Kind, doc TemplateDocument) (database.CardTemplate, error) {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return database.CardTemplate{}, fmt.Errorf("encode template fields: %w", err)
	}
	geometry, err := json.Marshal(doc.Geometry)
	if err != nil {
		return database.CardTemplate{}, fmt.Errorf("encode template geometry: %w", err)
	}
	instructions, err := json.Marshal(doc.Instructions)
	if err != nil {
		return database.CardTemplate{}, fmt.Errorf("encode template instructions: %w", err)
	}
	return database.CardTemplate{
		SchoolID:     schoolID,
		Kind:         string(kind),
		Title:        doc.Title,
		Background:   doc.Background,
		Fields:       datatypes.JSON(fields),
		Geometry:     datatypes.JSON(geometry),
		Instructions: datatypes.JSON(instructions),
	}, nil
}
