package container

import (
	"os"
	"strings"
)

// IsContainerised returns true if the current process is likely running inside a container.
// The gateway uses this at startup to decide default log formatting and whether to skip
// the interactive terminal banner, so it checks the common orchestrator signals: Docker's
// /.dockerenv, container-related cgroup entries, Kubernetes, and ECS task metadata.
func IsContainerised() bool {
	return hasDockerEnvFile() || isInContainerCGroup() || isInKubernetesPod() || isInECSTask()
}

// hasDockerEnvFile checks if the /.dockerenv file exists, which _should be_ present in most Docker containers.
func hasDockerEnvFile() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

// isInContainerCGroup checks for container-related strings in /proc/1/cgroup (e.g. docker, containerd, kubepods).
func isInContainerCGroup() bool {
	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, "docker") ||
		strings.Contains(content, "containerd") ||
		strings.Contains(content, "kubepods")
}

// isInKubernetesPod checks for Kubernetes-specific environment variable.
func isInKubernetesPod() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// isInECSTask checks for the task metadata endpoint ECS injects into every
// task container, covering deployments that don't set /.dockerenv or a
// recognisable cgroup path.
func isInECSTask() bool {
	return os.Getenv("ECS_CONTAINER_METADATA_URI_V4") != "" || os.Getenv("ECS_CONTAINER_METADATA_URI") != ""
}
