package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// TemplateService expands {placeholder} tokens using template mappings.
// Rendering is pure and never fails.
type TemplateService interface {
	Render(template string, mappings []models.TemplateMapping, contact *models.ContactRecord) string
	RenderFields(template string, mappings []models.TemplateMapping, contact *models.ContactRecord) (string, map[string]string)
	ExtractPlaceholders(template string) []string
	ValidateMappings(mappings []models.TemplateMapping) error
	Preview(template string, mappings []models.TemplateMapping, contact *models.ContactRecord) *PreviewResult
}

type templateService struct {
	placeholderPattern *regexp.Regexp
}

// NewTemplateService creates a new template service
func NewTemplateService() TemplateService {
	return &templateService{
		placeholderPattern: regexp.MustCompile(`\{(\w+)\}`),
	}
}

// Render replaces each token with its mapped value. Unmapped tokens become [name].
func (s *templateService) Render(template string, mappings []models.TemplateMapping, contact *models.ContactRecord) string {
	body, _ := s.RenderFields(template, mappings, contact)
	return body
}

// RenderFields renders template and also returns the resolved value of every mapping
func (s *templateService) RenderFields(template string, mappings []models.TemplateMapping, contact *models.ContactRecord) (string, map[string]string) {
	index := indexMappings(mappings)

	values := make(map[string]string, len(index))
	for name, m := range index {
		values[name] = resolveMapping(m, contact)
	}

	body := s.placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := values[name]; ok {
			return value
		}
		return "[" + name + "]"
	})

	return body, values
}

// ExtractPlaceholders returns the distinct tokens of template in first-seen order
func (s *templateService) ExtractPlaceholders(template string) []string {
	matches := s.placeholderPattern.FindAllStringSubmatch(template, -1)
	placeholders := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))

	for _, match := range matches {
		if len(match) > 1 && !seen[match[1]] {
			seen[match[1]] = true
			placeholders = append(placeholders, match[1])
		}
	}

	return placeholders
}

// ValidateMappings requires unique placeholder names and a known mapping type
func (s *templateService) ValidateMappings(mappings []models.TemplateMapping) error {
	seen := make(map[string]bool, len(mappings))
	for i, m := range mappings {
		field := fmt.Sprintf("template_mappings[%d]", i)
		if m.PlaceholderName == "" {
			return models.NewValidationError(field+".placeholder_name", "is required")
		}
		if seen[m.PlaceholderName] {
			return models.NewValidationError(field+".placeholder_name",
				fmt.Sprintf("placeholder %q is mapped more than once", m.PlaceholderName))
		}
		seen[m.PlaceholderName] = true

		switch m.MappingType {
		case models.MappingContactField:
			if m.MappingValue == "" {
				return models.NewValidationError(field+".mapping_value", "contact field name is required")
			}
		case models.MappingStaticValue:
		default:
			return models.NewValidationError(field+".mapping_type",
				fmt.Sprintf("must be %s or %s", models.MappingContactField, models.MappingStaticValue))
		}
	}
	return nil
}

// Preview renders template for one contact and reports which tokens still need a mapping
func (s *templateService) Preview(template string, mappings []models.TemplateMapping, contact *models.ContactRecord) *PreviewResult {
	index := indexMappings(mappings)
	placeholders := s.ExtractPlaceholders(template)

	unmapped := []string{}
	for _, p := range placeholders {
		if _, ok := index[p]; !ok {
			unmapped = append(unmapped, p)
		}
	}

	return &PreviewResult{
		Rendered:     s.Render(template, mappings, contact),
		Placeholders: placeholders,
		Unmapped:     unmapped,
	}
}

// indexMappings keys mappings by placeholder; the first mapping of a name wins
func indexMappings(mappings []models.TemplateMapping) map[string]models.TemplateMapping {
	index := make(map[string]models.TemplateMapping, len(mappings))
	for _, m := range mappings {
		if _, exists := index[m.PlaceholderName]; !exists {
			index[m.PlaceholderName] = m
		}
	}
	return index
}

func resolveMapping(m models.TemplateMapping, contact *models.ContactRecord) string {
	if m.MappingType == models.MappingStaticValue {
		return m.MappingValue
	}
	if m.MappingType != models.MappingContactField || contact == nil {
		return ""
	}

	if v, ok := contact.Fields[m.MappingValue]; ok {
		return formatValue(v)
	}

	// Built-in attributes when the contact has no custom field of that name
	switch strings.ToLower(m.MappingValue) {
	case "email":
		return contact.Email
	case "phone":
		return contact.Phone
	case "id":
		return contact.ID
	}
	return ""
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
