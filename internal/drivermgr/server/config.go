package server

import "github.com/autopeer-io/drivermgr/pkg/options"

type Config struct {
	HttpOptions *options.HttpOptions
	GrpcOptions *options.GrpcOptions
}
