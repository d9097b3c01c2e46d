package render

import "testing"

func ptr(v float64) *float64 { return &v }

func TestTemplateResolve_FallsBackToDefaults(t *testing.T) {
	resolved := Template{}.Resolve(KindIDCard)

	name := resolved.Field(FieldName)
	if name.FontSize != DefaultNameFontSize || name.Color != DefaultColor {
		t.Fatalf("unexpected name defaults %+v", name)
	}
	if rollNo := resolved.Field(FieldRollNo); rollNo.FontSize != DefaultFontSize {
		t.Fatalf("unexpected roll number defaults %+v", rollNo)
	}
	if resolved.Title != "IDENTITY CARD" {
		t.Fatalf("unexpected default title %q", resolved.Title)
	}
	if resolved.Background != nil {
		t.Fatalf("no background expected")
	}
}

func TestTemplateResolve_OverridesAndValidation(t *testing.T) {
	bg := Stored("schools/1/bg.png")
	tpl := Template{
		Background: &bg,
		Fields: map[string]FieldSpec{
			FieldName:  {X: ptr(0.1), Y: ptr(0.2), FontSize: ptr(20), Color: "#112233"},
			FieldPhoto: {X: ptr(1.5), Y: ptr(-0.2), Width: ptr(0.3)},
			FieldClass: {X: ptr(0.4), Y: ptr(0.6), Color: "red"},
		},
	}
	resolved := tpl.Resolve(KindIDCard)

	name := resolved.Field(FieldName)
	if name.X != 0.1 || name.Y != 0.2 || name.FontSize != 20 || name.Color != "#112233" {
		t.Fatalf("name override not applied: %+v", name)
	}
	photo := resolved.Field(FieldPhoto)
	if photo.X != 1 || photo.Y != 0 || photo.Width != 0.3 || photo.Height != 0.60 {
		t.Fatalf("photo override not merged: %+v", photo)
	}
	if class := resolved.Field(FieldClass); class.Color != DefaultColor || class.FontSize != DefaultFontSize {
		t.Fatalf("invalid color should fall back: %+v", class)
	}

	resolved.Background.Location = "changed"
	if bg.Location != "schools/1/bg.png" || tpl.Background.Location != "schools/1/bg.png" {
		t.Fatalf("resolving must not alias the template")
	}
	if *tpl.Fields[FieldPhoto].X != 1.5 {
		t.Fatalf("template must not be mutated")
	}
}

func TestTemplateResolve_PartialOverrideKeepsDefaultPosition(t *testing.T) {
	tpl := Template{
		Fields: map[string]FieldSpec{
			FieldRollNo: {FontSize: ptr(18)},
			FieldClass:  {Color: "#00AA00"},
			FieldCode:   {Y: ptr(0.8)},
		},
	}
	defaults := DefaultFields(KindIDCard)
	resolved := tpl.Resolve(KindIDCard)

	roll := resolved.Field(FieldRollNo)
	if roll.X != defaults[FieldRollNo].X || roll.Y != defaults[FieldRollNo].Y || roll.FontSize != 18 {
		t.Fatalf("roll number should keep its default position: %+v", roll)
	}
	class := resolved.Field(FieldClass)
	if class.X != defaults[FieldClass].X || class.Y != defaults[FieldClass].Y || class.Color != "#00AA00" {
		t.Fatalf("class should keep its default position: %+v", class)
	}
	code := resolved.Field(FieldCode)
	if code.X != defaults[FieldCode].X || code.Y != 0.8 || code.Width != defaults[FieldCode].Width {
		t.Fatalf("code should only move vertically: %+v", code)
	}
}

func TestDefaultFields_ReturnsCopy(t *testing.T) {
	fields := DefaultFields(KindAdmitCard)
	fields[FieldName] = ResolvedField{}
	if DefaultFields(KindAdmitCard)[FieldName].FontSize == 0 {
		t.Fatalf("defaults must not be shared")
	}
}
