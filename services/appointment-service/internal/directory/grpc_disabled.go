//go:build !protogen

package directory

// GRPCDoctorSource is only available in protogen builds, where the generated
// directory protobuf stubs exist. The default build falls back to the HTTP
// client.
func GRPCDoctorSource(_ string) (DoctorSource, error) {
	return nil, nil
}
