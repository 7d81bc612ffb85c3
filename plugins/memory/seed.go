package memory

import (
	"fmt"
	"os"

	"github.com/Jeffail/gabs/v2"

	"github.com/BDNK1/lowflow/runtime"
)

// LoadFile reads a seed document from disk. See Load for its shape.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading seed file: %w", err)
	}
	return Load(data)
}

// Load builds a store from a JSON seed document:
//
//	{
//	  "projects": [{"id": "p1", "name": "Shop",
//	                "collections": [{"id": "c_users", "name": "users", "primaryKey": "id"}],
//	                "fields": [{"id": "f_email", "name": "email", "collectionId": "c_users"}]}],
//	  "records": {"c_users": [{"id": "U001", "f_email": "a@b.c"}]}
//	}
func Load(data []byte) (*Store, error) {
	doc, err := gabs.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing seed document: %w", err)
	}

	s := New()
	for i, p := range doc.S("projects").Children() {
		project := runtime.Project{
			ID:   str(p, "id"),
			Name: str(p, "name"),
		}
		if project.ID == "" {
			return nil, fmt.Errorf("project %d has no id", i)
		}
		for _, c := range p.S("collections").Children() {
			project.Collections = append(project.Collections, runtime.Collection{
				ID:         str(c, "id"),
				Name:       str(c, "name"),
				PrimaryKey: str(c, "primaryKey"),
			})
		}
		var fields []runtime.Field
		for _, f := range p.S("fields").Children() {
			fields = append(fields, runtime.Field{
				ID:           str(f, "id"),
				Name:         str(f, "name"),
				CollectionID: str(f, "collectionId"),
			})
		}
		s.AddProject(project, fields...)
	}

	for collection, rows := range doc.S("records").ChildrenMap() {
		for j, row := range rows.Children() {
			m, ok := row.Data().(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d of %s is not an object", j, collection)
			}
			s.Seed(collection, m)
		}
	}
	return s, nil
}

func str(c *gabs.Container, key string) string {
	v, ok := c.S(key).Data().(string)
	if !ok {
		return ""
	}
	return v
}
