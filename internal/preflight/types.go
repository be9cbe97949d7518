package preflight

// Finding is the outcome of one container configuration probe
type Finding struct {
	Check  string `json:"check"`
	Path   string `json:"path,omitempty"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Failed returns the findings that did not pass
func Failed(findings []Finding) []Finding {
	var failed []Finding
	for _, f := range findings {
		if !f.OK {
			failed = append(failed, f)
		}
	}
	return failed
}

// deviceNodes lists the nodes a backend needs exposed in the container
func deviceNodes(backend string) []string {
	rocm := []string{"/dev/kfd", "/dev/dri"}
	cuda := []string{"/dev/nvidiactl", "/dev/nvidia0", "/dev/nvidia-uvm"}

	switch backend {
	case "rocm":
		return rocm
	case "cuda":
		return cuda
	case "host":
		return nil
	default:
		return append(rocm, cuda...)
	}
}

// accessGroups are the groups GPU device nodes are usually owned by
var accessGroups = []string{"video", "render"}
