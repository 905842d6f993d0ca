package main

import (
	"testing"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capability"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/credential"
)

func TestCredentialDeploymentMapping(t *testing.T) {
	cases := map[capability.DeploymentContext]credential.DeploymentContext{
		capability.DeploymentNative:       credential.DeploymentNative,
		capability.DeploymentFlatpak:      credential.DeploymentFlatpak,
		capability.DeploymentSystemdUser:  credential.DeploymentSystemdUser,
		capability.DeploymentSystemdSystem: credential.DeploymentSystemdSystem,
		capability.DeploymentInitD:        credential.DeploymentInitD,
	}
	for in, want := range cases {
		if got := credentialDeployment(in); got != want {
			t.Errorf("credentialDeployment(%v) = %v, want %v", in, got, want)
		}
	}
}
