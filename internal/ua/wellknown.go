package ua

// Well-known namespace-0 numeric NodeIds. Values match the OPC UA
// standard's numeric identifiers: these are not arbitrary and must not
// be renumbered, since a conformant client recognizes them by id.
const (
	NsOpcUa = 0 // reserved namespace index for "http://opcfoundation.org/UA/"

	IDReferences                 uint32 = 31
	IDHasSubtype                 uint32 = 45
	IDHasChild                   uint32 = 34
	IDNonHierarchicalReferences  uint32 = 32
	IDHierarchicalReferences     uint32 = 33
	IDOrganizes                  uint32 = 35
	IDAggregates                 uint32 = 44
	IDHasProperty                uint32 = 46
	IDHasComponent               uint32 = 47
	IDHasTypeDefinition          uint32 = 40

	IDBaseObjectType   uint32 = 58
	IDBaseVariableType uint32 = 62
	IDBaseDataType     uint32 = 24
	IDFolderType       uint32 = 61

	IDBoolean uint32 = 1
	IDSByte   uint32 = 2
	IDByte    uint32 = 3
	IDInt16   uint32 = 4
	IDUInt16  uint32 = 5
	IDInt32   uint32 = 6
	IDUInt32  uint32 = 7
	IDInt64   uint32 = 8
	IDUInt64  uint32 = 9
	IDFloat   uint32 = 10
	IDDouble  uint32 = 11
	IDString  uint32 = 12
	IDDateTime uint32 = 13
	IDGuid    uint32 = 14

	IDRootFolder    uint32 = 84
	IDObjectsFolder uint32 = 85
	IDTypesFolder   uint32 = 86
	IDViewsFolder   uint32 = 87

	IDServer                                     uint32 = 2253
	IDServerNamespaceArray                       uint32 = 2255
	IDServerServerStatus                         uint32 = 2256
	IDServerServerStatusCurrentTime              uint32 = 2258
	IDServerServiceLevel                         uint32 = 2267
	IDServerAuditing                             uint32 = 2994
	IDServerServerCapabilities                   uint32 = 2268
	IDServerServerCapabilitiesLocaleIDArray      uint32 = 2271
	IDServerServerArray                          uint32 = 2254
)

func ns0(id uint32) NodeID { return NewNumeric(NsOpcUa, id) }

// Convenience NodeID values for the constants above, used throughout
// internal/addrspace and internal/statusvars.
var (
	References                = ns0(IDReferences)
	HasSubtype                = ns0(IDHasSubtype)
	HasChild                  = ns0(IDHasChild)
	NonHierarchicalReferences = ns0(IDNonHierarchicalReferences)
	HierarchicalReferences    = ns0(IDHierarchicalReferences)
	Organizes                 = ns0(IDOrganizes)
	Aggregates                = ns0(IDAggregates)
	HasProperty               = ns0(IDHasProperty)
	HasComponent              = ns0(IDHasComponent)
	HasTypeDefinition         = ns0(IDHasTypeDefinition)

	BaseObjectType   = ns0(IDBaseObjectType)
	BaseVariableType = ns0(IDBaseVariableType)
	BaseDataType     = ns0(IDBaseDataType)
	FolderType       = ns0(IDFolderType)

	BooleanType  = ns0(IDBoolean)
	SByteType    = ns0(IDSByte)
	ByteType     = ns0(IDByte)
	Int16Type    = ns0(IDInt16)
	UInt16Type   = ns0(IDUInt16)
	Int32Type    = ns0(IDInt32)
	UInt32Type   = ns0(IDUInt32)
	Int64Type    = ns0(IDInt64)
	UInt64Type   = ns0(IDUInt64)
	FloatType    = ns0(IDFloat)
	DoubleType   = ns0(IDDouble)
	StringType   = ns0(IDString)
	DateTimeType = ns0(IDDateTime)
	GuidType     = ns0(IDGuid)

	RootFolder    = ns0(IDRootFolder)
	ObjectsFolder = ns0(IDObjectsFolder)
	TypesFolder   = ns0(IDTypesFolder)
	ViewsFolder   = ns0(IDViewsFolder)

	ServerObject                        = ns0(IDServer)
	ServerNamespaceArray                = ns0(IDServerNamespaceArray)
	ServerServerStatus                  = ns0(IDServerServerStatus)
	ServerServerStatusCurrentTime       = ns0(IDServerServerStatusCurrentTime)
	ServerServiceLevel                  = ns0(IDServerServiceLevel)
	ServerAuditing                      = ns0(IDServerAuditing)
	ServerServerCapabilities            = ns0(IDServerServerCapabilities)
	ServerServerCapabilitiesLocaleIDs   = ns0(IDServerServerCapabilitiesLocaleIDArray)
	ServerServerArray                   = ns0(IDServerServerArray)
)

// ScalarDataType names one of the built-in scalar types bootstrapped
// under BaseDataType.
type ScalarDataType struct {
	ID   NodeID
	Name string
}

// ScalarDataTypesList lists them in bootstrap order.
var ScalarDataTypesList = []ScalarDataType{
	{BooleanType, "Boolean"},
	{SByteType, "SByte"},
	{ByteType, "Byte"},
	{Int16Type, "Int16"},
	{UInt16Type, "UInt16"},
	{Int32Type, "Int32"},
	{UInt32Type, "UInt32"},
	{Int64Type, "Int64"},
	{UInt64Type, "UInt64"},
	{FloatType, "Float"},
	{DoubleType, "Double"},
	{StringType, "String"},
	{DateTimeType, "DateTime"},
	{GuidType, "Guid"},
}
