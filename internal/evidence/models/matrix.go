package models

import "slices"

// methodExclusions lists dataset types an ingestion method may not declare.
// Certificates and lab reports need a file or a verified system as origin.
var methodExclusions = map[IngestionMethod][]DatasetType{
	MethodManualEntry: {DatasetCertificate, DatasetLabReport, DatasetTransportDocument},
	MethodAPIPush:     {DatasetCertificate, DatasetLabReport},
	MethodFileUpload:  nil,
	MethodSystemPull:  nil,
}

// scopeMatrix lists the concrete scopes each dataset type may bind to.
// UNKNOWN is accepted for every dataset type and is not listed.
var scopeMatrix = map[DatasetType][]DeclaredScope{
	DatasetBillOfMaterials:     {ScopeProductFamily},
	DatasetProductionVolume:    {ScopeSite, ScopeProductFamily},
	DatasetEnergyConsumption:   {ScopeSite, ScopeLegalEntity},
	DatasetEmissionsData:       {ScopeSite, ScopeLegalEntity, ScopeOrganization},
	DatasetSupplierDeclaration: {ScopeLegalEntity, ScopeProductFamily},
	DatasetCertificate:         {ScopeLegalEntity, ScopeSite, ScopeProductFamily},
	DatasetLabReport:           {ScopeProductFamily, ScopeSite},
	DatasetTransportDocument:   {ScopeLegalEntity, ScopeSite},
}

// MethodAllowsDataset reports whether method may declare dataset.
func MethodAllowsDataset(method IngestionMethod, dataset DatasetType) bool {
	excluded, ok := methodExclusions[method]
	if !ok || !dataset.IsValid() {
		return false
	}
	return !slices.Contains(excluded, dataset)
}

// ScopeAllowedFor reports whether dataset may be bound to scope.
func ScopeAllowedFor(dataset DatasetType, scope DeclaredScope) bool {
	if scope == ScopeUnknown {
		return dataset.IsValid()
	}
	return slices.Contains(scopeMatrix[dataset], scope)
}

// AllowedScopes returns the concrete scopes for dataset, for error messages.
func AllowedScopes(dataset DatasetType) []DeclaredScope {
	return slices.Clone(scopeMatrix[dataset])
}
