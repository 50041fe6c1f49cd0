package sqlinline

const QSelectProfile = `--sql 2e1f6355-dfab-4acd-be78-354d8683011f
select
    user_id,
    coalesce(email, '') as email,
    coalesce(plan, 'free') as plan,
    credits
from profiles
where user_id = $1
limit 1;
`

// QDeductCredits returns (true, remaining) when the balance covered the
// amount and (false, current) when it did not. No row means no profile.
const QDeductCredits = `--sql 8af18fb6-75de-4d87-9162-5c68749c48dd
with updated as (
    update profiles
    set credits = credits - $2::int,
        updated_at = now()
    where user_id = $1
      and credits >= $2::int
    returning credits
)
select true as ok, credits from updated
union all
select false as ok, credits
from profiles
where user_id = $1
  and not exists (select 1 from updated)
limit 1;
`

const QUpsertProfileGrant = `--sql a621eaa8-2843-4463-8de7-4c7c1e99c15e
insert into profiles (user_id, email, plan, credits, created_at, updated_at)
values ($1, nullif($2::text, ''), $3::text, $4::int, now(), now())
on conflict (user_id) do update set
    email = coalesce(nullif($2::text, ''), profiles.email),
    plan = excluded.plan,
    credits = excluded.credits,
    updated_at = now()
returning user_id, coalesce(email, ''), plan, credits;
`

const QAddCredits = `--sql 9f86b4b8-dc8a-4335-a4d1-5412af2ab40d
update profiles
set credits = greatest(credits + $2::int, 0),
    updated_at = now()
where user_id = $1
returning user_id, coalesce(email, ''), plan, credits;
`

const QSelectProfileByEmail = `--sql 9f72c997-a3d4-4cee-88a2-84b4bf48c93d
select
    user_id,
    coalesce(email, '') as email,
    coalesce(plan, 'free') as plan,
    credits
from profiles
where lower(email) = lower($1)
limit 1;
`
