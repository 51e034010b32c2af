package asset

// SelectedFile is one entry of a file or folder selection. RelativePath is the
// path inside the selected folder and may be empty for single files.
type SelectedFile struct {
	RelativePath string
	*Handle
}

type ReconcileResult struct {
	Resolved     map[string]*Handle
	StillMissing []string
}

func (r ReconcileResult) Complete() bool {
	return len(r.StillMissing) == 0
}

// Reconcile binds every local-pending reference to the first selected file
// whose path or name matches it. A single file may satisfy several references
// when their keys collide. Unmatched references are reported, never an error.
func Reconcile(refs []string, files []SelectedFile) ReconcileResult {
	res := ReconcileResult{Resolved: make(map[string]*Handle)}

	for _, ref := range refs {
		if Classify(ref) != LocalPending {
			continue
		}
		if _, done := res.Resolved[ref]; done {
			continue
		}

		if h := firstMatch(ref, files); h != nil {
			res.Resolved[ref] = h
		} else {
			res.StillMissing = append(res.StillMissing, ref)
		}
	}

	return res
}

func firstMatch(ref string, files []SelectedFile) *Handle {
	for _, f := range files {
		if f.Handle == nil {
			continue
		}
		if f.RelativePath != "" && KeysMatch(ref, f.RelativePath) {
			return f.Handle
		}
		if KeysMatch(ref, f.Name) {
			return f.Handle
		}
	}
	return nil
}
