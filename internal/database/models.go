package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// School 表示一个租户（学校）。
type School struct {
	gorm.Model
	Name    string `gorm:"size:255"`
	Address string `gorm:"size:512"`
	Slug    string `gorm:"uniqueIndex;size:64"`
}

// Student 表示一名学生，PhotoKey 保存照片的资源引用（对象 key 或 URL）。
type Student struct {
	gorm.Model
	SchoolID uint         `gorm:"index"`
	School   School       `gorm:"constraint:OnDelete:CASCADE"`
	Name     string       `gorm:"size:255"`
	RollNo   string       `gorm:"size:32;index"`
	Class    string       `gorm:"size:32;index"`
	Section  string       `gorm:"size:16"`
	PhotoKey string       `gorm:"size:512"`
	Results  []ExamResult `gorm:"constraint:OnDelete:CASCADE"`
}

// ExamResult 表示某次考试中一门科目的成绩。
type ExamResult struct {
	gorm.Model
	StudentID uint   `gorm:"index"`
	Exam      string `gorm:"size:64;index"`
	Subject   string `gorm:"size:128"`
	Marks     float64
	MaxMarks  float64
	Grade     string `gorm:"size:8"`
}

// CardTemplate 保存学校某一类文档的模板。
// Fields/Geometry/Instructions 以 JSONB 存储。
type CardTemplate struct {
	gorm.Model
	SchoolID     uint           `gorm:"uniqueIndex:idx_school_kind"`
	School       School         `gorm:"constraint:OnDelete:CASCADE"`
	Kind         string         `gorm:"size:32;uniqueIndex:idx_school_kind"`
	Title        string         `gorm:"size:255"`
	Background   string         `gorm:"size:512"`
	Fields       datatypes.JSON `gorm:"type:jsonb"`
	Geometry     datatypes.JSON `gorm:"type:jsonb"`
	Instructions datatypes.JSON `gorm:"type:jsonb"`
}
