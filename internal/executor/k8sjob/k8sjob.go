// Package k8sjob implements the Kubernetes Jobs remote execution backend
// described in spec.md §4.4.2, grounded on the original's k8s_executor.py.
package k8sjob

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/copilot-bridge/agent/internal/executor"
)

const ttlSecondsAfterFinished int32 = 300

// Backend dispatches tasks as Kubernetes Jobs in a single namespace and
// reads results back through the State Store's result cache (the Job
// itself only needs to run to completion; InProcess-style result writing
// happens inside the worker binary via cmd/remote-worker).
type Backend struct {
	clientset kubernetes.Interface
	namespace string
	image     string
	cpuLimit  string
	memLimit  string
	extraEnv  map[string]string
}

// Config configures a k8sjob.Backend.
type Config struct {
	Namespace string
	Image     string
	CPULimit  string
	MemLimit  string
	// ExtraEnv carries the optional pass-through variables the worker
	// needs (REDIS_URL/STATE_BACKEND, the LLM auth token and LLM provider
	// settings) that aren't derivable from the task itself.
	ExtraEnv map[string]string
}

// NewBackend loads in-cluster config, falling back to the local kubeconfig
// for development, mirroring the original's load_incluster_config/
// load_kube_config fallback.
func NewBackend(cfg Config) (*Backend, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			clientcmd.NewDefaultClientConfigLoadingRules(), &clientcmd.ConfigOverrides{},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("load kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes clientset: %w", err)
	}

	if cfg.CPULimit == "" {
		cfg.CPULimit = "1"
	}
	if cfg.MemLimit == "" {
		cfg.MemLimit = "1Gi"
	}

	return &Backend{
		clientset: clientset,
		namespace: cfg.Namespace,
		image:     cfg.Image,
		cpuLimit:  cfg.CPULimit,
		memLimit:  cfg.MemLimit,
		extraEnv:  cfg.ExtraEnv,
	}, nil
}

func (b *Backend) Submit(ctx context.Context, spec executor.JobSpec) (string, error) {
	env := buildEnv(spec, b.extraEnv)

	boolFalse := false
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: b.namespace},
		Spec: batchv1.JobSpec{
			BackoffLimit:            int32Ptr(1),
			TTLSecondsAfterFinished: int32Ptr(ttlSecondsAfterFinished),
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    "task",
							Image:   b.image,
							Command: []string{"/usr/local/bin/remote-worker"},
							Env:     env,
							VolumeMounts: []corev1.VolumeMount{
								{Name: "tmp", MountPath: "/tmp"},
							},
							Resources: corev1.ResourceRequirements{
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resourceQuantity(b.cpuLimit),
									corev1.ResourceMemory: resourceQuantity(b.memLimit),
								},
							},
							SecurityContext: &corev1.SecurityContext{
								RunAsNonRoot:           boolPtr(true),
								RunAsUser:              int64Ptr(1000),
								ReadOnlyRootFilesystem: boolPtr(true),
								Capabilities:           &corev1.Capabilities{Drop: []corev1.Capability{"ALL"}},
								AllowPrivilegeEscalation: &boolFalse,
							},
						},
					},
					Volumes: []corev1.Volume{
						{Name: "tmp", VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}},
					},
				},
			},
		},
	}

	_, err := b.clientset.BatchV1().Jobs(b.namespace).Create(ctx, job, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return spec.Name, nil
	}
	if err != nil {
		return "", fmt.Errorf("create job %s: %w", spec.Name, err)
	}
	return spec.Name, nil
}

func (b *Backend) Status(ctx context.Context, jobID string) (executor.JobState, error) {
	job, err := b.clientset.BatchV1().Jobs(b.namespace).Get(ctx, jobID, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		// Deleted out from under us by a concurrent caller or the TTL
		// reaper; treat as failed so the caller doesn't poll forever.
		return executor.JobFailed, nil
	}
	if err != nil {
		return "", fmt.Errorf("read job %s: %w", jobID, err)
	}
	if job.Status.Succeeded > 0 {
		return executor.JobSucceeded, nil
	}
	if job.Status.Failed > 0 {
		return executor.JobFailed, nil
	}
	return executor.JobRunning, nil
}

func (b *Backend) Logs(ctx context.Context, jobID string) (string, error) {
	pods, err := b.clientset.CoreV1().Pods(b.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", jobID),
	})
	if err != nil {
		return "", fmt.Errorf("list pods for job %s: %w", jobID, err)
	}
	if len(pods.Items) == 0 {
		return "<no pods found>", nil
	}

	req := b.clientset.CoreV1().Pods(b.namespace).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{})
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("stream logs for pod %s: %w", pods.Items[0].Name, err)
	}
	defer stream.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, readErr := stream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	return string(buf), nil
}

func (b *Backend) Delete(ctx context.Context, jobID string) error {
	propagation := metav1.DeletePropagationBackground
	err := b.clientset.BatchV1().Jobs(b.namespace).Delete(ctx, jobID, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func buildEnv(spec executor.JobSpec, extra map[string]string) []corev1.EnvVar {
	var env []corev1.EnvVar
	for k, v := range spec.EnvOverrides() {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}
	// Writable cache/home dirs for the read-only root filesystem.
	env = append(env,
		corev1.EnvVar{Name: "XDG_CACHE_HOME", Value: "/tmp/.cache"},
		corev1.EnvVar{Name: "HOME", Value: "/tmp"},
	)
	for k, v := range extra {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}
	return env
}
