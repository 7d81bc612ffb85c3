package runtime

// projectIndex is what the engine keeps of a project after Init: how to
// find collections by name, their primary keys and the field alias table.
type projectIndex struct {
	id          string
	collections map[string]string // id or name -> id
	primaryKeys map[string]string // collection id -> primary key field id
	aliases     *AliasTable
}

// DefaultPrimaryKey is used for collections that do not declare one.
const DefaultPrimaryKey = "id"

func newProjectIndex(project *Project, aliases *AliasTable) *projectIndex {
	idx := &projectIndex{
		id:          project.ID,
		collections: make(map[string]string, 2*len(project.Collections)),
		primaryKeys: make(map[string]string, len(project.Collections)),
		aliases:     aliases,
	}
	for _, c := range project.Collections {
		idx.collections[c.ID] = c.ID
		if c.Name != "" {
			if _, taken := idx.collections[c.Name]; !taken {
				idx.collections[c.Name] = c.ID
			}
		}
		pk := c.PrimaryKey
		if pk == "" {
			pk = DefaultPrimaryKey
		}
		idx.primaryKeys[c.ID] = pk
	}
	return idx
}

// collection maps a collection reference to its id; unknown references
// are passed to the store unchanged.
func (idx *projectIndex) collection(ref string) string {
	if idx == nil {
		return ref
	}
	if id, ok := idx.collections[ref]; ok {
		return id
	}
	return ref
}

func (idx *projectIndex) primaryKey(collectionID string) string {
	if idx == nil {
		return DefaultPrimaryKey
	}
	if pk, ok := idx.primaryKeys[collectionID]; ok {
		return pk
	}
	return DefaultPrimaryKey
}

func (idx *projectIndex) fieldID(collectionID, ref string) string {
	if idx == nil {
		return ref
	}
	return idx.aliases.FieldID(collectionID, ref)
}

func (idx *projectIndex) candidates(name string) []string {
	if idx == nil {
		return nil
	}
	return idx.aliases.Candidates(name)
}
