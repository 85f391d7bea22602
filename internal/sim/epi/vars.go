package epi

// varTable assigns dense integer ids to personal and global variables during
// program compile, replacing name lookup at run time. Globals live here;
// personal slots live on each Person.
type varTable struct {
	personal      map[string]int
	personalLists map[string]int
	global        map[string]int
	globalLists   map[string]int

	numPersonal      int
	numPersonalLists int

	globalVals []float64
	globalList [][]float64
}

func newVarTable() *varTable {
	return &varTable{
		personal:      map[string]int{},
		personalLists: map[string]int{},
		global:        map[string]int{},
		globalLists:   map[string]int{},
	}
}

func (v *varTable) personalID(name string, create bool) int {
	if id, ok := v.personal[name]; ok {
		return id
	}
	if !create {
		return -1
	}
	id := v.numPersonal
	v.personal[name] = id
	v.numPersonal++
	return id
}

func (v *varTable) personalListID(name string, create bool) int {
	if id, ok := v.personalLists[name]; ok {
		return id
	}
	if !create {
		return -1
	}
	id := v.numPersonalLists
	v.personalLists[name] = id
	v.numPersonalLists++
	return id
}

func (v *varTable) globalID(name string, create bool) int {
	if id, ok := v.global[name]; ok {
		return id
	}
	if !create {
		return -1
	}
	id := len(v.globalVals)
	v.global[name] = id
	v.globalVals = append(v.globalVals, 0)
	return id
}

func (v *varTable) globalListID(name string, create bool) int {
	if id, ok := v.globalLists[name]; ok {
		return id
	}
	if !create {
		return -1
	}
	id := len(v.globalList)
	v.globalLists[name] = id
	v.globalList = append(v.globalList, nil)
	return id
}

func (v *varTable) getGlobal(id int) float64 {
	if id < 0 || id >= len(v.globalVals) {
		return 0
	}
	return v.globalVals[id]
}

func (v *varTable) setGlobal(id int, val float64) {
	if id >= 0 && id < len(v.globalVals) {
		v.globalVals[id] = val
	}
}

func (v *varTable) getGlobalList(id int) []float64 {
	if id < 0 || id >= len(v.globalList) {
		return nil
	}
	return v.globalList[id]
}

func (v *varTable) setGlobalList(id int, val []float64) {
	if id >= 0 && id < len(v.globalList) {
		v.globalList[id] = val
	}
}
