package addrspace

import (
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/opcua-core/internal/ua"
)

// Bootstrap seeds References/HasSubtype with no validation, builds out
// the reference-type and basic-type
// hierarchies using HasSubtype edges added as an internal operation that
// bypasses class validation, then the Root/Objects/Types/Views folder
// skeleton and the Server object subtree. After Bootstrap returns, every
// subsequent Add*Node call goes through full validation.
func (a *AddressSpace) Bootstrap(serverApplicationURI, productURI string, build BuildInfo) error {
	a.bootstrapping = true
	defer func() { a.bootstrapping = false }()

	if err := a.seedReferencesAndHasSubtype(); err != nil {
		return err
	}
	if err := a.seedReferenceHierarchy(); err != nil {
		return err
	}
	if err := a.seedBaseTypes(); err != nil {
		return err
	}
	if err := a.seedScalarDataTypes(); err != nil {
		return err
	}
	if err := a.seedFolderSkeleton(); err != nil {
		return err
	}
	if err := a.seedServerObject(serverApplicationURI, productURI, build); err != nil {
		return err
	}

	log.Info().Int("nodeCount", a.Nodes.Len()).Msg("address space bootstrap complete")
	return nil
}

// seedReferencesAndHasSubtype is step (a): the two-element seed. Both
// nodes are inserted without type validation and without incoming
// references, because HasSubtype, the edge that will classify every
// reference type from here on including itself, does not exist before
// this call. Once both exist, the single References -> HasSubtype
// subtype edge between them is added.
func (a *AddressSpace) seedReferencesAndHasSubtype() error {
	referencesID := ua.References
	hasSubtypeID := ua.HasSubtype

	referencesNode := &ua.Node{
		NodeID:      referencesID,
		NodeClass:   ua.NodeClassReferenceType,
		BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: "References"},
		DisplayName: ua.LocalizedText{Text: "References"},
		IsAbstract:  true,
		Symmetric:   true,
	}
	if err := a.Nodes.Insert(referencesNode); err != nil {
		return err
	}

	hasSubtypeNode := &ua.Node{
		NodeID:      hasSubtypeID,
		NodeClass:   ua.NodeClassReferenceType,
		BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: "HasSubtype"},
		DisplayName: ua.LocalizedText{Text: "HasSubtype"},
		IsAbstract:  false,
		InverseName: ua.LocalizedText{Text: "HasSupertype"},
	}
	if err := a.Nodes.Insert(hasSubtypeNode); err != nil {
		return err
	}

	// References is HasSubtype's own supertype, expressed once HasSubtype
	// exists to classify the edge with.
	return a.AddReference(referencesID, hasSubtypeID, hasSubtypeID, false)
}

type refTypeSeed struct {
	id          ua.NodeID
	name        string
	parent      ua.NodeID
	abstract    bool
	symmetric   bool
	inverseName string
}

// seedReferenceHierarchy is step (b): the rest of the reference-type
// hierarchy, each insertion adding its HasSubtype(parent -> child) edge
// as it goes.
func (a *AddressSpace) seedReferenceHierarchy() error {
	seeds := []refTypeSeed{
		{ua.HasChild, "HasChild", ua.References, true, false, "ChildOf"},
		{ua.NonHierarchicalReferences, "NonHierarchicalReferences", ua.References, true, false, "NonHierarchicalReferencesOf"},
		{ua.HierarchicalReferences, "HierarchicalReferences", ua.References, true, false, "HierarchicalReferencesOf"},
		{ua.Organizes, "Organizes", ua.HierarchicalReferences, false, false, "OrganizedBy"},
		{ua.Aggregates, "Aggregates", ua.HasChild, true, false, "AggregatedBy"},
		{ua.HasComponent, "HasComponent", ua.Aggregates, false, false, "ComponentOf"},
		{ua.HasProperty, "HasProperty", ua.Aggregates, false, false, "PropertyOf"},
		{ua.HasTypeDefinition, "HasTypeDefinition", ua.NonHierarchicalReferences, false, false, "TypeDefinitionOf"},
	}
	for _, s := range seeds {
		n := &ua.Node{
			NodeID:      s.id,
			NodeClass:   ua.NodeClassReferenceType,
			BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: s.name},
			DisplayName: ua.LocalizedText{Text: s.name},
			IsAbstract:  s.abstract,
			Symmetric:   s.symmetric,
			InverseName: ua.LocalizedText{Text: s.inverseName},
		}
		if err := a.Nodes.Insert(n); err != nil {
			return err
		}
		if err := a.AddReference(s.parent, ua.HasSubtype, s.id, false); err != nil {
			return err
		}
	}
	return nil
}

// seedBaseTypes is step (c): BaseDataType, BaseVariableType,
// BaseObjectType, each abstract and self-seeded (no supertype).
func (a *AddressSpace) seedBaseTypes() error {
	bases := []struct {
		id   ua.NodeID
		name string
	}{
		{ua.BaseDataType, "BaseDataType"},
		{ua.BaseVariableType, "BaseVariableType"},
		{ua.BaseObjectType, "BaseObjectType"},
	}
	for _, b := range bases {
		var class ua.NodeClass
		switch b.id {
		case ua.BaseDataType:
			class = ua.NodeClassDataType
		case ua.BaseVariableType:
			class = ua.NodeClassVariableType
		default:
			class = ua.NodeClassObjectType
		}
		n := &ua.Node{
			NodeID:      b.id,
			NodeClass:   class,
			BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: b.name},
			DisplayName: ua.LocalizedText{Text: b.name},
			IsAbstract:  true,
		}
		if err := a.Nodes.Insert(n); err != nil {
			return err
		}
	}

	// FolderType derives from BaseObjectType (also step (d), placed here
	// since the folder skeleton needs it immediately after).
	folderType := &ua.Node{
		NodeID:      ua.FolderType,
		NodeClass:   ua.NodeClassObjectType,
		BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: "FolderType"},
		DisplayName: ua.LocalizedText{Text: "FolderType"},
		IsAbstract:  false,
	}
	if err := a.Nodes.Insert(folderType); err != nil {
		return err
	}
	return a.AddReference(ua.BaseObjectType, ua.HasSubtype, ua.FolderType, false)
}

// seedScalarDataTypes derives every built-in scalar type from
// BaseDataType (step d).
func (a *AddressSpace) seedScalarDataTypes() error {
	for _, t := range ua.ScalarDataTypesList {
		n := &ua.Node{
			NodeID:      t.ID,
			NodeClass:   ua.NodeClassDataType,
			BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: t.Name},
			DisplayName: ua.LocalizedText{Text: t.Name},
			IsAbstract:  false,
		}
		if err := a.Nodes.Insert(n); err != nil {
			return err
		}
		if err := a.AddReference(ua.BaseDataType, ua.HasSubtype, t.ID, false); err != nil {
			return err
		}
	}
	return nil
}

// seedFolderSkeleton builds Root / Objects / Types / Views under
// FolderType (step d).
func (a *AddressSpace) seedFolderSkeleton() error {
	folders := []struct {
		id   ua.NodeID
		name string
	}{
		{ua.RootFolder, "Root"},
		{ua.ObjectsFolder, "Objects"},
		{ua.TypesFolder, "Types"},
		{ua.ViewsFolder, "Views"},
	}
	for i, f := range folders {
		n := &ua.Node{
			NodeID:      f.id,
			NodeClass:   ua.NodeClassObject,
			BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: f.name},
			DisplayName: ua.LocalizedText{Text: f.name},
		}
		if err := a.Nodes.Insert(n); err != nil {
			return err
		}
		if err := a.AddReference(n.NodeID, ua.HasTypeDefinition, ua.FolderType, false); err != nil {
			return err
		}
		if i > 0 {
			// Objects/Types/Views organized under Root.
			if err := a.AddReference(ua.RootFolder, ua.Organizes, f.id, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildInfo backs the ServerStatus BuildInfo sub-structure.
type BuildInfo struct {
	ProductName     string
	ManufacturerName string
	SoftwareVersion string
	BuildNumber     string
}

// seedServerObject is step (e): the Server object and its NamespaceArray
// / ServerStatus / ServerCapabilities / ServerArray subtree. The actual
// data-source callback wiring (NamespaceArray, ServerStatus, etc.) is
// done by internal/statusvars.Install once this skeleton exists, since
// statusvars needs a reference back to the NamespaceTable and server
// state that addrspace does not own.
func (a *AddressSpace) seedServerObject(serverApplicationURI, productURI string, build BuildInfo) error {
	server := &ua.Node{
		NodeID:      ua.ServerObject,
		NodeClass:   ua.NodeClassObject,
		BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: "Server"},
		DisplayName: ua.LocalizedText{Text: "Server"},
	}
	if err := a.Nodes.Insert(server); err != nil {
		return err
	}
	if err := a.AddReference(ua.ObjectsFolder, ua.Organizes, ua.ServerObject, false); err != nil {
		return err
	}

	placeholders := []struct {
		id       ua.NodeID
		name     string
		dataType ua.NodeID
		rank     ua.ValueRank
	}{
		{ua.ServerNamespaceArray, "NamespaceArray", ua.StringType, 1},
		{ua.ServerServerStatus, "ServerStatus", ua.NULL, ua.ValueRankScalar},
		{ua.ServerServiceLevel, "ServiceLevel", ua.ByteType, ua.ValueRankScalar},
		{ua.ServerAuditing, "Auditing", ua.BooleanType, ua.ValueRankScalar},
		{ua.ServerServerArray, "ServerArray", ua.StringType, 1},
		{ua.ServerServerCapabilities, "ServerCapabilities", ua.NULL, ua.ValueRankScalar},
	}
	for _, p := range placeholders {
		n := &ua.Node{
			NodeID:      p.id,
			NodeClass:   ua.NodeClassVariable,
			BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: p.name},
			DisplayName: ua.LocalizedText{Text: p.name},
			DataType:    p.dataType,
			ValueRank:   p.rank,
			AccessLevel: ua.AccessLevelCurrentRead,
		}
		if p.id == ua.ServerServerCapabilities {
			n.NodeClass = ua.NodeClassObject
		}
		if err := a.Nodes.Insert(n); err != nil {
			return err
		}
		if err := a.AddReference(ua.ServerObject, ua.HasComponent, p.id, false); err != nil {
			return err
		}
	}

	// CurrentTime hangs off ServerStatus rather than the Server object
	// directly.
	currentTime := ua.Node{
		NodeID:      ua.ServerServerStatusCurrentTime,
		NodeClass:   ua.NodeClassVariable,
		BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: "CurrentTime"},
		DisplayName: ua.LocalizedText{Text: "CurrentTime"},
		DataType:    ua.DateTimeType,
		ValueRank:   ua.ValueRankScalar,
		AccessLevel: ua.AccessLevelCurrentRead,
	}
	if err := a.Nodes.Insert(&currentTime); err != nil {
		return err
	}
	if err := a.AddReference(ua.ServerServerStatus, ua.HasComponent, ua.ServerServerStatusCurrentTime, false); err != nil {
		return err
	}

	caps := ua.Node{
		NodeID:      ua.ServerServerCapabilitiesLocaleIDs,
		NodeClass:   ua.NodeClassVariable,
		BrowseName:  ua.QualifiedName{NamespaceIndex: 0, Name: "LocaleIdArray"},
		DisplayName: ua.LocalizedText{Text: "LocaleIdArray"},
		DataType:    ua.StringType,
		ValueRank:   1,
		AccessLevel: ua.AccessLevelCurrentRead,
		Value:       ua.NewDataValue([]string{"en"}, ua.StatusOK, a.now(), a.now()),
	}
	if err := a.Nodes.Insert(&caps); err != nil {
		return err
	}
	if err := a.AddReference(ua.ServerServerCapabilities, ua.HasProperty, ua.ServerServerCapabilitiesLocaleIDs, false); err != nil {
		return err
	}

	log.Info().Str("applicationUri", serverApplicationURI).Str("productUri", productURI).Msg("bootstrapped Server object subtree")
	return nil
}
