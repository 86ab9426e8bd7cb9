package measure

import (
	"testing"

	"tradeops-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func TestComputeCbm(t *testing.T) {
	tests := []struct {
		name    string
		l, w, h *float64
		want    *float64
	}{
		{"all present", f64(100), f64(50), f64(40), f64(0.2)},
		{"rounds to four places", f64(12.3), f64(45.6), f64(7.8), f64(0.0044)},
		{"zero side is zero volume", f64(0), f64(20), f64(30), f64(0)},
		{"missing height", f64(10), f64(20), nil, nil},
		{"missing width", f64(10), nil, f64(30), nil},
		{"missing length", nil, f64(20), f64(30), nil},
		{"all missing", nil, nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeCbm(tt.l, tt.w, tt.h)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
			assert.GreaterOrEqual(t, *got, 0.0)
		})
	}
}

func TestComputeCbm_IncompleteProductIsUnknownNotZero(t *testing.T) {
	p := &models.Product{ProductLength: f64(10), ProductWidth: f64(20)}

	assert.Nil(t, ProductCbm(p))

	_, ok := UnitVolumeM3(p)
	assert.False(t, ok)
}

func TestIndependentDimensionTriples(t *testing.T) {
	p := &models.Product{
		ProductLength: f64(10), ProductWidth: f64(10), ProductHeight: f64(10),
		InnerBoxLength: f64(20), InnerBoxWidth: f64(20), InnerBoxHeight: f64(20),
		CartonLength: f64(50), CartonWidth: f64(40), CartonHeight: f64(30),
	}

	assert.InDelta(t, 0.001, *ProductCbm(p), 1e-9)
	assert.InDelta(t, 0.008, *InnerBoxCbm(p), 1e-9)
	assert.InDelta(t, 0.06, *CartonCbm(p), 1e-9)
}

func TestPcsPerCarton(t *testing.T) {
	assert.Equal(t, 48, *PcsPerCarton(intp(12), intp(4)))
	assert.Nil(t, PcsPerCarton(intp(12), nil))
	assert.Nil(t, PcsPerCarton(nil, intp(4)))
	assert.Nil(t, PcsPerCarton(intp(0), intp(4)))
}

func TestEstimateCartonWeight(t *testing.T) {
	got := EstimateCartonWeight(f64(0.25), intp(48))
	require.NotNil(t, got)
	assert.InDelta(t, 13.2, *got, 1e-9)

	assert.Nil(t, EstimateCartonWeight(nil, intp(48)))
	assert.Nil(t, EstimateCartonWeight(f64(0.25), nil))
}

func TestUnitWeightKg(t *testing.T) {
	w, ok := UnitWeightKg(&models.Product{WeightGrams: f64(1250)})
	require.True(t, ok)
	assert.Equal(t, "1.25", w.String())

	_, ok = UnitWeightKg(&models.Product{})
	assert.False(t, ok)
}

func TestUnitVolumeM3_KeepsSixPlaces(t *testing.T) {
	small := &models.Product{ProductLength: f64(5), ProductWidth: f64(5), ProductHeight: f64(5)}
	v, ok := UnitVolumeM3(small)
	require.True(t, ok)
	assert.Equal(t, "0.000125", v.String())
	assert.Equal(t, 0.0001, *ProductCbm(small))

	odd := &models.Product{ProductLength: f64(12.3), ProductWidth: f64(45.6), ProductHeight: f64(7.8)}
	v, ok = UnitVolumeM3(odd)
	require.True(t, ok)
	assert.Equal(t, "0.004375", v.String())
}

func TestRefresh(t *testing.T) {
	p := &models.Product{
		CartonLength: f64(50), CartonWidth: f64(40), CartonHeight: f64(30),
		PcsPerInnerBox: intp(6), InnerBoxesPerCarton: intp(8),
	}
	Refresh(p)

	require.NotNil(t, p.CartonCbm)
	assert.InDelta(t, 0.06, *p.CartonCbm, 1e-9)
	require.NotNil(t, p.PcsPerCarton)
	assert.Equal(t, 48, *p.PcsPerCarton)
}

func TestRefresh_KeepsExistingWhenInputsIncomplete(t *testing.T) {
	p := &models.Product{CartonCbm: f64(0.5), PcsPerCarton: intp(10), CartonLength: f64(50)}
	Refresh(p)

	assert.InDelta(t, 0.5, *p.CartonCbm, 1e-9)
	assert.Equal(t, 10, *p.PcsPerCarton)
}

func TestValidatePackaging(t *testing.T) {
	t.Run("consistent", func(t *testing.T) {
		p := &models.Product{
			WeightGrams: f64(200), PcsPerInnerBox: intp(6), InnerBoxesPerCarton: intp(4),
			PcsPerCarton: intp(24), CartonWeight: f64(5.5),
		}
		assert.Empty(t, ValidatePackaging(p))
	})

	t.Run("inner without carton count", func(t *testing.T) {
		p := &models.Product{PcsPerInnerBox: intp(6)}
		assert.Equal(t, []string{"You have Pieces per Inner Box but no Inner Boxes per Carton"}, ValidatePackaging(p))
	})

	t.Run("carton count without inner", func(t *testing.T) {
		p := &models.Product{InnerBoxesPerCarton: intp(4)}
		assert.Equal(t, []string{"You have Inner Boxes per Carton but no Pieces per Inner Box"}, ValidatePackaging(p))
	})

	t.Run("carton lighter than contents", func(t *testing.T) {
		p := &models.Product{WeightGrams: f64(500), PcsPerCarton: intp(24), CartonWeight: f64(10)}
		warnings := ValidatePackaging(p)
		require.Len(t, warnings, 1)
		assert.Equal(t, "Carton Gross Weight (10.000 kg) is less than Unit Weight × Pieces (12.000 kg)", warnings[0])
	})
}
